// Package artifact publishes accepted Works and Units to a key/blob store
// as markdown documents with a YAML front-matter block.
package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/errs"
)

// Info is the metadata of a stored blob. Version is backend specific: a
// blob SHA on GitHub, empty elsewhere.
type Info struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Version string    `json:"version,omitempty"`
}

// Store is a key/blob store. Keys are slash-separated relative paths.
// A missing key is a NotFound error; backend failures are Storage errors.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Stat(ctx context.Context, key string) (Info, error)
	// List returns the keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open returns the store selected by cfg, or nil when publishing is
// disabled.
func Open(ctx context.Context, cfg config.ArtifactConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "fs":
		s, err = NewFSStore(cfg.Dir)
	case "github":
		s, err = NewGitHubStore(ctx, cfg.GitHub)
	case "redis":
		s, err = NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("artifact: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// WorkKey is the key of a Work document.
func WorkKey(slug string) string {
	return "works/" + slug + "/work.md"
}

// UnitKey is the key of a Unit document. Numbers are zero padded so keys
// sort in reading order.
func UnitKey(slug string, number int) string {
	return fmt.Sprintf("works/%s/units/%04d.md", slug, number)
}

// UnitPrefix is the key prefix of every Unit of a Work.
func UnitPrefix(slug string) string {
	return "works/" + slug + "/units/"
}

// checkKey rejects keys that are absolute, empty, or escape the store.
func checkKey(op, key string) error {
	if key == "" {
		return errs.Validation(op, "empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return errs.Validation(op, "invalid key %q", key)
	}
	if path.Clean(key) != key {
		return errs.Validation(op, "key %q is not clean", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return errs.Validation(op, "invalid key %q", key)
		}
	}
	return nil
}
