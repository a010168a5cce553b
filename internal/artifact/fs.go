package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zulandar/quill/internal/errs"
)

const tempPrefix = ".quill-tmp-"

// FSStore keeps blobs as files under a root directory. Writes go to a
// temp file that is synced and renamed into place.
type FSStore struct {
	root string
}

// NewFSStore returns a store rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, errs.Validation("artifact: fs store", "directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Storage("artifact: fs store", err)
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Put(_ context.Context, key string, data []byte) error {
	const op = "artifact: put"
	if err := checkKey(op, key); err != nil {
		return err
	}
	dst := s.path(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Storage(op, err)
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return errs.Storage(op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Storage(op, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Storage(op, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Storage(op, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	const op = "artifact: get"
	if err := checkKey(op, key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fsErr(op, key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	const op = "artifact: delete"
	if err := checkKey(op, key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil {
		return fsErr(op, key, err)
	}
	return nil
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Stat(ctx, key)
	if errs.Is(err, errs.KindNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *FSStore) Stat(_ context.Context, key string) (Info, error) {
	const op = "artifact: stat"
	if err := checkKey(op, key); err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(s.path(key))
	if err != nil {
		return Info{}, fsErr(op, key, err)
	}
	if fi.IsDir() {
		return Info{}, errs.NotFound(op, "not a blob: %s", key)
	}
	return Info{Key: key, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (s *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Storage("artifact: list", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func fsErr(op, key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return errs.NotFound(op, "artifact not found: %s", key)
	}
	return errs.Storage(op, err)
}
