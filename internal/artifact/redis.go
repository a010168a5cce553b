package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/errs"
)

// RedisStore keeps each blob in a string key with a metadata hash beside
// it; a sorted set indexes the keys for prefix listing.
type RedisStore struct {
	rdb    goredis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to the server in cfg and pings it.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	const op = "artifact: redis store"
	var password string
	if cfg.PasswordEnv != "" {
		password = os.Getenv(cfg.PasswordEnv)
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DB:          cfg.DB,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.Storage(op, fmt.Errorf("redis ping: %w", err))
	}
	return NewRedisStoreWith(rdb, cfg.Prefix), nil
}

// NewRedisStoreWith wraps an existing client.
func NewRedisStoreWith(rdb goredis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "quill"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) blob(key string) string { return s.prefix + ":blob:" + key }
func (s *RedisStore) meta(key string) string { return s.prefix + ":meta:" + key }
func (s *RedisStore) index() string          { return s.prefix + ":keys" }

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	const op = "artifact: put"
	if err := checkKey(op, key); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.blob(key), data, 0)
		p.HSet(ctx, s.meta(key), "size", len(data), "modified", s.now().UTC().Format(time.RFC3339Nano))
		p.ZAdd(ctx, s.index(), goredis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "artifact: get"
	if err := checkKey(op, key); err != nil {
		return nil, err
	}
	data, err := s.rdb.Get(ctx, s.blob(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, errs.NotFound(op, "artifact not found: %s", key)
	}
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	const op = "artifact: delete"
	if err := checkKey(op, key); err != nil {
		return err
	}
	var del *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		del = p.Del(ctx, s.blob(key), s.meta(key))
		p.ZRem(ctx, s.index(), key)
		return nil
	})
	if err != nil {
		return errs.Storage(op, err)
	}
	if del.Val() == 0 {
		return errs.NotFound(op, "artifact not found: %s", key)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	const op = "artifact: exists"
	if err := checkKey(op, key); err != nil {
		return false, err
	}
	n, err := s.rdb.Exists(ctx, s.blob(key)).Result()
	if err != nil {
		return false, errs.Storage(op, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Stat(ctx context.Context, key string) (Info, error) {
	const op = "artifact: stat"
	if err := checkKey(op, key); err != nil {
		return Info{}, err
	}
	m, err := s.rdb.HGetAll(ctx, s.meta(key)).Result()
	if err != nil {
		return Info{}, errs.Storage(op, err)
	}
	if len(m) == 0 {
		return Info{}, errs.NotFound(op, "artifact not found: %s", key)
	}
	info := Info{Key: key}
	info.Size, _ = strconv.ParseInt(m["size"], 10, 64)
	info.ModTime, _ = time.Parse(time.RFC3339Nano, m["modified"])
	return info, nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	by := &goredis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		by = &goredis.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}
	keys, err := s.rdb.ZRangeByLex(ctx, s.index(), by).Result()
	if err != nil {
		return nil, errs.Storage("artifact: list", err)
	}
	return keys, nil
}
