package artifact

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/quill/internal/config"
)

// fakeContents serves the subset of the GitHub contents API the store
// uses, backed by an in-memory tree.
type fakeContents struct {
	mu       sync.Mutex
	files    map[string][]byte
	commits  []string
	branches map[string]bool
	auth     string
}

func newFakeContents() *fakeContents {
	return &fakeContents{files: map[string][]byte{}, branches: map[string]bool{}}
}

func blobSHA(data []byte) string {
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func fileJSON(p string, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"type":     "file",
		"encoding": "base64",
		"name":     path.Base(p),
		"path":     p,
		"size":     len(data),
		"sha":      blobSHA(data),
		"content":  base64.StdEncoding.EncodeToString(data),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeContents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const base = "/repos/inkwell/serials/contents"
	if !strings.HasPrefix(r.URL.Path, base) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	p := strings.Trim(strings.TrimPrefix(r.URL.Path, base), "/")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")

	switch r.Method {
	case http.MethodGet:
		f.branches[r.URL.Query().Get("ref")] = true
		if data, ok := f.files[p]; ok {
			writeJSON(w, http.StatusOK, fileJSON(p, data))
			return
		}
		entries := f.dir(p)
		if len(entries) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, entries)

	case http.MethodPut, http.MethodDelete:
		var body struct {
			Message string  `json:"message"`
			Content []byte  `json:"content"`
			SHA     *string `json:"sha"`
			Branch  string  `json:"branch"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		f.branches[body.Branch] = true
		old, exists := f.files[p]
		if exists && (body.SHA == nil || *body.SHA != blobSHA(old)) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "sha mismatch"})
			return
		}
		if !exists && r.Method == http.MethodDelete {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		f.commits = append(f.commits, body.Message)
		if r.Method == http.MethodDelete {
			delete(f.files, p)
			writeJSON(w, http.StatusOK, map[string]interface{}{"commit": map[string]string{"sha": "c"}})
			return
		}
		f.files[p] = body.Content
		status := http.StatusOK
		if !exists {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]interface{}{
			"content": fileJSON(p, body.Content),
			"commit":  map[string]string{"sha": "c"},
		})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method"})
	}
}

// dir lists the direct children of directory p.
func (f *fakeContents) dir(p string) []map[string]interface{} {
	seen := map[string]bool{}
	var out []map[string]interface{}
	for fp, data := range f.files {
		rest := fp
		if p != "" {
			if !strings.HasPrefix(fp, p+"/") {
				continue
			}
			rest = strings.TrimPrefix(fp, p+"/")
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			child := path.Join(p, rest[:i])
			if !seen[child] {
				seen[child] = true
				out = append(out, map[string]interface{}{"type": "dir", "name": rest[:i], "path": child})
			}
			continue
		}
		entry := fileJSON(fp, data)
		delete(entry, "content")
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["path"].(string) < out[j]["path"].(string) })
	return out
}

func newGitHubTestStore(t *testing.T) (*GitHubStore, *fakeContents) {
	t.Helper()
	fake := newFakeContents()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("QUILL_TEST_GH_TOKEN", "gh-secret")

	s, err := NewGitHubStore(context.Background(), config.GitHubConfig{
		Owner:      "inkwell",
		Repo:       "serials",
		Branch:     "quill",
		PathPrefix: "/published/",
		TokenEnv:   "QUILL_TEST_GH_TOKEN",
		BaseURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("NewGitHubStore: %v", err)
	}
	return s, fake
}

func TestGitHubStore(t *testing.T) {
	s, fake := newGitHubTestStore(t)
	exerciseStore(t, s)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.auth != "Bearer gh-secret" {
		t.Errorf("Authorization = %q", fake.auth)
	}
	if len(fake.branches) != 1 || !fake.branches["quill"] {
		t.Errorf("branches = %v", fake.branches)
	}
	if _, ok := fake.files["published/works/a/work.md"]; !ok {
		t.Errorf("path prefix not applied: %v", fake.files)
	}
}

func TestGitHubStore_SkipsUnchangedContent(t *testing.T) {
	s, fake := newGitHubTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.Put(ctx, "works/a/work.md", []byte("same")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Put(ctx, "works/a/work.md", []byte("changed")); err != nil {
		t.Fatal(err)
	}
	want := []string{"quill: publish works/a/work.md", "quill: update works/a/work.md"}
	if strings.Join(fake.commits, "|") != strings.Join(want, "|") {
		t.Errorf("commits = %v, want %v", fake.commits, want)
	}
	info, err := s.Stat(ctx, "works/a/work.md")
	if err != nil || info.Version != blobSHA([]byte("changed")) {
		t.Errorf("Stat = %+v, %v", info, err)
	}
}
