//go:build integration

package artifact

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/zulandar/quill/internal/config"
)

// Requires a Redis server at QUILL_TEST_REDIS_ADDR (default 127.0.0.1:6379).
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("QUILL_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := fmt.Sprintf("quill-test-%d", time.Now().UnixNano())
	s, err := NewRedisStore(context.Background(), config.RedisConfig{Addr: addr, Prefix: prefix})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := s.List(ctx, "")
		for _, k := range keys {
			_ = s.Delete(ctx, k)
		}
	})
	exerciseStore(t, s)
}
