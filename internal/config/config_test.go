package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  name: quill_prod
  user: writer
  password_env: QUILL_DB_PASSWORD

policy:
  max_active: 5
  create_when_stuck: true
  readiness_threshold: 90
  progress_prefilter: 0.75
  max_closing_units: 2

validation:
  min_words: 1200
  max_words: 4000
  duplicate_threshold: 0.25
  min_quality: 6.5
  overrides:
    short-tales:
      min_words: 300

context:
  token_budget: 8000
  recent_units: 3
  compression: moderate

generator:
  command: ["quill-writer", "--model", "large"]
  timeout: 90s

artifacts:
  backend: github
  github:
    owner: inkwell
    repo: serials
    path_prefix: published

notify:
  slack:
    token_env: SLACK_TOKEN
    channel: C123

schedule:
  cron: "15 */4 * * *"
  lease_ttl: 45m
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Port != 3307 {
		t.Errorf("Database.Port = %d, want 3307", cfg.Database.Port)
	}
	if cfg.Database.User != "writer" {
		t.Errorf("Database.User = %q, want writer", cfg.Database.User)
	}
	if cfg.Policy.MaxActive != 5 || !cfg.Policy.CreateWhenStuck {
		t.Errorf("Policy = %+v", cfg.Policy)
	}
	if cfg.Policy.ReadinessThreshold != 90 {
		t.Errorf("ReadinessThreshold = %v, want 90", cfg.Policy.ReadinessThreshold)
	}
	if cfg.Validation.DuplicateThreshold != 0.25 {
		t.Errorf("DuplicateThreshold = %v, want 0.25", cfg.Validation.DuplicateThreshold)
	}
	if cfg.Context.Compression != "moderate" {
		t.Errorf("Compression = %q, want moderate", cfg.Context.Compression)
	}
	if len(cfg.Generator.Command) != 3 || cfg.Generator.Command[0] != "quill-writer" {
		t.Errorf("Generator.Command = %v", cfg.Generator.Command)
	}
	if cfg.Generator.Timeout != 90*time.Second {
		t.Errorf("Generator.Timeout = %v, want 90s", cfg.Generator.Timeout)
	}
	if cfg.Artifacts.GitHub.Branch != "main" {
		t.Errorf("GitHub.Branch = %q, want default main", cfg.Artifacts.GitHub.Branch)
	}
	if !cfg.Notify.Slack.Enabled() {
		t.Error("Slack should be enabled")
	}
	if cfg.Notify.Discord.Enabled() {
		t.Error("Discord should not be enabled")
	}
	if cfg.Schedule.LeaseTTL != 45*time.Minute {
		t.Errorf("LeaseTTL = %v, want 45m", cfg.Schedule.LeaseTTL)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "quill.db" {
		t.Errorf("Database = %+v, want sqlite quill.db", cfg.Database)
	}
	if cfg.Policy.MaxActive != 3 {
		t.Errorf("MaxActive = %d, want 3", cfg.Policy.MaxActive)
	}
	if cfg.Policy.ReadinessThreshold != 85 {
		t.Errorf("ReadinessThreshold = %v, want 85", cfg.Policy.ReadinessThreshold)
	}
	if cfg.Validation.MinWords != 800 || cfg.Validation.MaxWords != 6000 {
		t.Errorf("Validation = %+v", cfg.Validation)
	}
	if cfg.Validation.DuplicateThreshold != 0.3 {
		t.Errorf("DuplicateThreshold = %v, want 0.3", cfg.Validation.DuplicateThreshold)
	}
	if cfg.Validation.MinQuality != 7.0 {
		t.Errorf("MinQuality = %v, want 7.0", cfg.Validation.MinQuality)
	}
	if cfg.Validation.Scorer != ScorerHeuristic {
		t.Errorf("Scorer = %q, want heuristic", cfg.Validation.Scorer)
	}
	if cfg.Artifacts.Backend != "none" {
		t.Errorf("Artifacts.Backend = %q, want none", cfg.Artifacts.Backend)
	}
	if cfg.Logging.Mode != "dev" {
		t.Errorf("Logging.Mode = %q, want dev", cfg.Logging.Mode)
	}
}

func TestParse_PostgresDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: postgres\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Database.SSLMode != "disable" {
		t.Errorf("SSLMode = %q, want disable", cfg.Database.SSLMode)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad driver", "database:\n  driver: oracle\n", "database.driver"},
		{"inverted length", "validation:\n  min_words: 500\n  max_words: 100\n", "max_words must be >="},
		{"threshold out of range", "policy:\n  readiness_threshold: 120\n", "readiness_threshold"},
		{"prefilter out of range", "policy:\n  progress_prefilter: 1.5\n", "progress_prefilter"},
		{"bad compression", "context:\n  compression: extreme\n", "context.compression"},
		{"bad scorer", "validation:\n  scorer: vibes\n", "validation.scorer"},
		{"github without repo", "artifacts:\n  backend: github\n", "artifacts.github.owner"},
		{"bad backend", "artifacts:\n  backend: ftp\n", "artifacts.backend"},
		{"bad cron", "schedule:\n  cron: \"every hour\"\n", "schedule.cron"},
		{"bad log mode", "logging:\n  mode: loud\n", "logging.mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_MultipleErrorsJoined(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: oracle\nlogging:\n  mode: loud\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("errors should be joined with '; ', got %q", err.Error())
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("policy: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("err = %v, want config: parse error", err)
	}
}

func TestValidationRange_Override(t *testing.T) {
	v := ValidationConfig{
		MinWords:  800,
		MaxWords:  6000,
		Overrides: map[string]LengthRange{"flash": {MinWords: 100, MaxWords: 1000}, "long": {MaxWords: 9000}},
	}
	if r := v.Range("flash"); r.MinWords != 100 || r.MaxWords != 1000 {
		t.Errorf("flash range = %+v", r)
	}
	if r := v.Range("long"); r.MinWords != 800 || r.MaxWords != 9000 {
		t.Errorf("long range = %+v", r)
	}
	if r := v.Range("other"); r.MinWords != 800 || r.MaxWords != 6000 {
		t.Errorf("other range = %+v", r)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.yaml")
	if err := os.WriteFile(path, []byte("policy:\n  max_active: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Policy.MaxActive != 7 {
		t.Errorf("MaxActive = %d, want 7", cfg.Policy.MaxActive)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config: read") {
		t.Errorf("err = %v, want config: read error", err)
	}
}

func TestDatabasePassword_FromEnv(t *testing.T) {
	t.Setenv("QUILL_TEST_DB_PW", "s3cret")
	d := DatabaseConfig{PasswordEnv: "QUILL_TEST_DB_PW"}
	if d.Password() != "s3cret" {
		t.Errorf("Password() = %q", d.Password())
	}
	if (DatabaseConfig{}).Password() != "" {
		t.Error("empty env name should give empty password")
	}
}
