package artifact

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/errs"
	"golang.org/x/oauth2"
)

// GitHubStore keeps blobs as files in a GitHub repository through the
// contents API. Every write is one commit on the configured branch.
type GitHubStore struct {
	client *github.Client
	owner  string
	repo   string
	branch string
	prefix string
}

// NewGitHubStore returns a store for cfg. The token is read from the
// environment variable named by cfg.TokenEnv; without one, requests are
// unauthenticated.
func NewGitHubStore(ctx context.Context, cfg config.GitHubConfig) (*GitHubStore, error) {
	const op = "artifact: github store"
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errs.Validation(op, "owner and repo are required")
	}
	var hc *http.Client
	if tok := os.Getenv(cfg.TokenEnv); cfg.TokenEnv != "" && tok != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok}))
	}
	client := github.NewClient(hc)
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, errs.Validation(op, "invalid base url %q: %v", cfg.BaseURL, err)
		}
		client.BaseURL = u
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHubStore{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: branch,
		prefix: strings.Trim(cfg.PathPrefix, "/"),
	}, nil
}

func (s *GitHubStore) path(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *GitHubStore) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return strings.TrimPrefix(p, s.prefix+"/")
}

// file fetches a file's metadata and content. A directory at p is
// reported as not found.
func (s *GitHubStore) file(ctx context.Context, op, key string) (*github.RepositoryContent, error) {
	fc, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, s.path(key),
		&github.RepositoryContentGetOptions{Ref: s.branch})
	if err != nil {
		return nil, githubErr(op, key, resp, err)
	}
	if fc == nil {
		return nil, errs.NotFound(op, "not a blob: %s", key)
	}
	return fc, nil
}

func (s *GitHubStore) Put(ctx context.Context, key string, data []byte) error {
	const op = "artifact: put"
	if err := checkKey(op, key); err != nil {
		return err
	}
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr("quill: publish " + key),
		Content: data,
		Branch:  github.Ptr(s.branch),
	}
	existing, err := s.file(ctx, op, key)
	switch {
	case errs.Is(err, errs.KindNotFound):
		_, resp, err := s.client.Repositories.CreateFile(ctx, s.owner, s.repo, s.path(key), opts)
		if err != nil {
			return githubErr(op, key, resp, err)
		}
		return nil
	case err != nil:
		return err
	}

	current, err := existing.GetContent()
	if err == nil && bytes.Equal([]byte(current), data) {
		return nil
	}
	opts.Message = github.Ptr("quill: update " + key)
	opts.SHA = existing.SHA
	_, resp, err := s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, s.path(key), opts)
	if err != nil {
		return githubErr(op, key, resp, err)
	}
	return nil
}

func (s *GitHubStore) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "artifact: get"
	if err := checkKey(op, key); err != nil {
		return nil, err
	}
	fc, err := s.file(ctx, op, key)
	if err != nil {
		return nil, err
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	return []byte(content), nil
}

func (s *GitHubStore) Delete(ctx context.Context, key string) error {
	const op = "artifact: delete"
	if err := checkKey(op, key); err != nil {
		return err
	}
	fc, err := s.file(ctx, op, key)
	if err != nil {
		return err
	}
	_, resp, err := s.client.Repositories.DeleteFile(ctx, s.owner, s.repo, s.path(key), &github.RepositoryContentFileOptions{
		Message: github.Ptr("quill: remove " + key),
		SHA:     fc.SHA,
		Branch:  github.Ptr(s.branch),
	})
	if err != nil {
		return githubErr(op, key, resp, err)
	}
	return nil
}

func (s *GitHubStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Stat(ctx, key)
	if errs.Is(err, errs.KindNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *GitHubStore) Stat(ctx context.Context, key string) (Info, error) {
	const op = "artifact: stat"
	if err := checkKey(op, key); err != nil {
		return Info{}, err
	}
	fc, err := s.file(ctx, op, key)
	if err != nil {
		return Info{}, err
	}
	return Info{Key: key, Size: int64(fc.GetSize()), Version: fc.GetSHA()}, nil
}

// List walks the directories under the deepest directory of prefix.
func (s *GitHubStore) List(ctx context.Context, prefix string) ([]string, error) {
	const op = "artifact: list"
	dir := prefix
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	} else {
		dir = ""
	}
	var keys []string
	var walk func(p string) error
	walk = func(p string) error {
		_, entries, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, p,
			&github.RepositoryContentGetOptions{Ref: s.branch})
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return nil
			}
			return githubErr(op, p, resp, err)
		}
		for _, e := range entries {
			switch e.GetType() {
			case "dir":
				if err := walk(e.GetPath()); err != nil {
					return err
				}
			case "file":
				if k := s.key(e.GetPath()); strings.HasPrefix(k, prefix) {
					keys = append(keys, k)
				}
			}
		}
		return nil
	}
	root := s.prefix
	if dir != "" {
		root = s.path(dir)
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func githubErr(op, key string, resp *github.Response, err error) error {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound {
		return errs.NotFound(op, "artifact not found: %s", key)
	}
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return errs.NotFound(op, "artifact not found: %s", key)
	}
	return errs.Storage(op, err)
}
