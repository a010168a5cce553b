package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/policy"
	"github.com/zulandar/quill/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv is a config file pointing at a sqlite database and an fs
// artifact store inside a temp dir.
type testEnv struct {
	dir    string
	config string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
generator:
  command: ["true"]
artifacts:
  backend: fs
  dir: %s
logging:
  mode: prod
  level: error
`, filepath.Join(dir, "quill.db"), filepath.Join(dir, "artifacts"))
	path := filepath.Join(dir, "quill.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	env := &testEnv{dir: dir, config: path}
	if _, err := env.run(t, "", "db", "init"); err != nil {
		t.Fatalf("db init: %v", err)
	}
	return env
}

// run executes the CLI with the env's config and returns its output.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func (e *testEnv) db(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(e.dir, "quill.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

// seedWork inserts a Work with n units directly.
func (e *testEnv) seedWork(t *testing.T, slug string, n int) {
	t.Helper()
	ctx := context.Background()
	gdb := e.db(t)
	works := repository.NewWorks(gdb)
	if _, err := works.Create(ctx, &models.Work{Slug: slug, Title: strings.ToUpper(slug), PlannedUnits: 10, Genre: "mystery", Theme: "betrayal", Variant: "v1"}); err != nil {
		t.Fatal(err)
	}
	units := repository.NewUnits(gdb)
	for i := 1; i <= n; i++ {
		u := &models.Unit{WorkSlug: slug, Number: i, Title: fmt.Sprintf("Part %d", i), Body: fmt.Sprintf("The body of part %d.", i), WordCount: 5, PublishedAt: time.Now()}
		if _, err := units.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	if err := works.RecordUnits(ctx, slug, n, 0); err != nil {
		t.Fatal(err)
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "quill dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"run", "status", "work", "daemon", "serve", "export", "import", "db"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q subcommand", sub)
		}
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "work", "list"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v, want load config error", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("QUILL_CONFIG", env.config)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"work", "list"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("work list: %v", err)
	}
	if !strings.Contains(buf.String(), "No works found.") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRun_DryRunJSON(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "run", "--dry-run", "--json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var res struct {
		Success bool          `json:"success"`
		Action  policy.Action `json:"action"`
		Detail  string        `json:"detail"`
		DryRun  bool          `json:"dry_run"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !res.Success || !res.DryRun || res.Action.Kind != policy.ActionCreateNew {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasPrefix(res.Detail, "dry run: would CreateNew") {
		t.Errorf("Detail = %q", res.Detail)
	}
}

func TestRun_ForcedContinueOfMissingWorkFails(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "run", "--force", "continue:ghost")
	if err == nil {
		t.Fatalf("expected failure, output:\n%s", out)
	}
	if !strings.Contains(out, "Failed:   DECIDE_ACTION") {
		t.Errorf("output = %q", out)
	}
}

func TestParseForce(t *testing.T) {
	tests := []struct {
		in      string
		want    *policy.Action
		wantErr string
	}{
		{"", nil, ""},
		{"create", &policy.Action{Kind: policy.ActionCreateNew}, ""},
		{"continue:alpha", &policy.Action{Kind: policy.ActionContinue, WorkSlug: "alpha"}, ""},
		{"Complete:beta", &policy.Action{Kind: policy.ActionComplete, WorkSlug: "beta"}, ""},
		{"none", &policy.Action{Kind: policy.ActionNone}, ""},
		{"continue", nil, "requires a work slug"},
		{"publish:alpha", nil, "unknown --force action"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseForce(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("parseForce(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedWork(t, "alpha", 2)

	out, err := env.run(t, "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Active works: 1 of 3", "alpha", "2/10", "Next action: CreateNew"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, "", "status", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var view struct {
		Situation policy.Situation `json:"situation"`
		Next      policy.Action    `json:"next"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Situation.ActiveCount != 1 || len(view.Situation.Works) != 1 {
		t.Errorf("situation = %+v", view.Situation)
	}
}

func TestWorkLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedWork(t, "alpha", 3)

	out, err := env.run(t, "", "work", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "3/10") {
		t.Errorf("list output:\n%s", out)
	}

	out, err = env.run(t, "", "work", "show", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ALPHA (alpha)", "Progress: 3/10 units (30%)", "mystery / betrayal / v1", "Part 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if out, err = env.run(t, "", "work", "pause", "alpha"); err != nil || !strings.Contains(out, "now paused") {
		t.Fatalf("pause: %v %s", err, out)
	}
	if out, err = env.run(t, "", "work", "list", "--status", "paused"); err != nil || !strings.Contains(out, "alpha") {
		t.Errorf("paused list: %v %s", err, out)
	}
	if _, err = env.run(t, "", "work", "pause", "alpha"); err == nil || !strings.Contains(err.Error(), "already paused") {
		t.Errorf("pausing a paused work: err = %v, want already paused", err)
	}
	if out, err = env.run(t, "", "work", "resume", "alpha"); err != nil || !strings.Contains(out, "now active") {
		t.Fatalf("resume: %v %s", err, out)
	}

	if _, err = env.run(t, "", "work", "list", "--status", "bogus"); err == nil {
		t.Error("unknown status filter should fail")
	}
	if _, err = env.run(t, "", "work", "show", "ghost"); err == nil {
		t.Error("show of a missing work should fail")
	}

	out, err = env.run(t, "wrong\n", "work", "delete", "alpha")
	if err != nil || !strings.Contains(out, "Aborted.") {
		t.Errorf("delete without confirmation: %v %s", err, out)
	}
	out, err = env.run(t, "alpha\n", "work", "delete", "alpha")
	if err != nil || !strings.Contains(out, "Deleted work alpha") {
		t.Fatalf("delete: %v %s", err, out)
	}
	if out, _ = env.run(t, "", "work", "list"); !strings.Contains(out, "No works found.") {
		t.Errorf("after delete:\n%s", out)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedWork(t, "alpha", 2)

	out, err := env.run(t, "", "export")
	if err != nil || !strings.Contains(out, "Exported alpha (2 units)") {
		t.Fatalf("export: %v %s", err, out)
	}
	for _, key := range []string{"works/alpha/work.md", "works/alpha/units/0001.md", "works/alpha/units/0002.md"} {
		if _, err := os.Stat(filepath.Join(env.dir, "artifacts", key)); err != nil {
			t.Errorf("missing artifact %s: %v", key, err)
		}
	}

	if _, err := env.run(t, "", "import", "alpha"); err == nil {
		t.Error("importing over an existing work should fail")
	}
	if _, err := env.run(t, "", "work", "delete", "--yes", "alpha"); err != nil {
		t.Fatal(err)
	}
	out, err = env.run(t, "", "import", "alpha")
	if err != nil || !strings.Contains(out, "Imported alpha (active, 2 units)") {
		t.Fatalf("import: %v %s", err, out)
	}
	if out, _ = env.run(t, "", "work", "show", "alpha"); !strings.Contains(out, "Part 2") {
		t.Errorf("imported work:\n%s", out)
	}
}

func TestDBReset(t *testing.T) {
	env := newTestEnv(t)
	env.seedWork(t, "alpha", 1)
	dbPath := filepath.Join(env.dir, "quill.db")

	out, err := env.run(t, "nope\n", "db", "reset")
	if err != nil || !strings.Contains(out, "Aborted.") {
		t.Fatalf("unconfirmed reset: %v %s", err, out)
	}
	if out, _ = env.run(t, "", "work", "list"); !strings.Contains(out, "alpha") {
		t.Fatal("aborted reset should keep data")
	}

	out, err = env.run(t, dbPath+"\n", "db", "reset")
	if err != nil || !strings.Contains(out, "reset and re-initialized") {
		t.Fatalf("reset: %v %s", err, out)
	}
	if out, _ = env.run(t, "", "work", "list"); !strings.Contains(out, "No works found.") {
		t.Errorf("after reset:\n%s", out)
	}
}

func TestDaemonOnce(t *testing.T) {
	env := newTestEnv(t)
	cfg, _ := os.ReadFile(env.config)
	cfg = append(cfg, []byte("policy:\n  max_active: 1\n")...)
	if err := os.WriteFile(env.config, cfg, 0644); err != nil {
		t.Fatal(err)
	}
	env.seedWork(t, "alpha", 1)

	// "true" prints nothing, so continuing alpha fails at generation.
	out, err := env.run(t, "", "daemon", "--once", "--holder", "test")
	if err == nil {
		t.Fatalf("expected generation failure:\n%s", out)
	}
	if !strings.Contains(out, "Continue(alpha)") || !strings.Contains(out, "EXECUTE_ACTION") {
		t.Errorf("daemon output:\n%s", out)
	}

	gdb := env.db(t)
	var lease models.RunLease
	if err := gdb.First(&lease, "name = ?", leaseName).Error; err != nil {
		t.Fatalf("lease row: %v", err)
	}
	if lease.Holder != "test" || lease.Status != "released" {
		t.Errorf("lease = %+v", lease)
	}
	var rec models.RunRecord
	if err := gdb.Order("started_at DESC").First(&rec).Error; err != nil {
		t.Fatal(err)
	}
	if rec.Trigger != "daemon" || rec.Success {
		t.Errorf("run record = %+v", rec)
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := timeAgo(now, tt.t); got != tt.want {
			t.Errorf("timeAgo(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}
