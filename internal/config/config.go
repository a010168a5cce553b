// Package config provides YAML-based configuration loading for Quill.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Quill configuration, loaded from quill.yaml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Policy     PolicyConfig     `yaml:"policy"`
	Validation ValidationConfig `yaml:"validation"`
	Context    ContextConfig    `yaml:"context"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Concepts   ConceptConfig    `yaml:"concepts"`
	Artifacts  ArtifactConfig   `yaml:"artifacts"`
	Notify     NotifyConfig     `yaml:"notify"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// DatabaseConfig selects the storage driver and its connection settings.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // sqlite, mysql, postgres
	Path        string `yaml:"path"`   // sqlite file
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	SSLMode     string `yaml:"sslmode"`
}

// Password resolves the database password from the configured env var.
func (d DatabaseConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// PolicyConfig tunes the action decision.
type PolicyConfig struct {
	MaxActive          int     `yaml:"max_active"`
	CreateWhenStuck    bool    `yaml:"create_when_stuck"`
	ReadinessThreshold float64 `yaml:"readiness_threshold"`
	ProgressPrefilter  float64 `yaml:"progress_prefilter"`
	MaxClosingUnits    int     `yaml:"max_closing_units"`
	WorldRulesTarget   int     `yaml:"world_rules_target"`
}

// LengthRange is an inclusive word-count range.
type LengthRange struct {
	MinWords int `yaml:"min_words"`
	MaxWords int `yaml:"max_words"`
}

// ValidationConfig holds thresholds for the validation gate.
type ValidationConfig struct {
	MinWords           int                    `yaml:"min_words"`
	MaxWords           int                    `yaml:"max_words"`
	DuplicateThreshold float64                `yaml:"duplicate_threshold"`
	MinQuality         float64                `yaml:"min_quality"`
	Scorer             string                 `yaml:"scorer"`
	Overrides          map[string]LengthRange `yaml:"overrides"`
}

// Quality scorers. ScorerSelfReported trusts the scores a generator
// attaches to its candidates.
const (
	ScorerHeuristic    = "heuristic"
	ScorerSelfReported = "self_reported"
)

// Range returns the effective length range for a work slug.
func (v ValidationConfig) Range(slug string) LengthRange {
	r := LengthRange{MinWords: v.MinWords, MaxWords: v.MaxWords}
	if o, ok := v.Overrides[slug]; ok {
		if o.MinWords > 0 {
			r.MinWords = o.MinWords
		}
		if o.MaxWords > 0 {
			r.MaxWords = o.MaxWords
		}
	}
	return r
}

// ContextConfig sizes the generation context packet.
type ContextConfig struct {
	TokenBudget      int    `yaml:"token_budget"`
	RecentUnits      int    `yaml:"recent_units"`
	DialogueExcerpts int    `yaml:"dialogue_excerpts"`
	Compression      string `yaml:"compression"` // none, moderate, aggressive
}

// GeneratorConfig configures the external content generator command.
type GeneratorConfig struct {
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Dir     string        `yaml:"dir"`
}

// ConceptConfig lists the genre and theme pools for new works.
type ConceptConfig struct {
	Genres      []string `yaml:"genres"`
	Themes      []string `yaml:"themes"`
	MaxAttempts int      `yaml:"max_attempts"`
	Seed        uint64   `yaml:"seed"`
}

// ArtifactConfig selects where accepted works and units are published.
type ArtifactConfig struct {
	Backend string       `yaml:"backend"` // none, fs, github, redis
	Dir     string       `yaml:"dir"`
	GitHub  GitHubConfig `yaml:"github"`
	Redis   RedisConfig  `yaml:"redis"`
}

// GitHubConfig addresses a repository used as an artifact store.
type GitHubConfig struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Branch     string `yaml:"branch"`
	PathPrefix string `yaml:"path_prefix"`
	TokenEnv   string `yaml:"token_env"`
	BaseURL    string `yaml:"base_url"`
}

// RedisConfig addresses a Redis server used as an artifact store.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	DB          int    `yaml:"db"`
	Prefix      string `yaml:"prefix"`
	PasswordEnv string `yaml:"password_env"`
}

// NotifyConfig holds chat destinations for run bulletins.
type NotifyConfig struct {
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
	// OnlyFailures suppresses bulletins for successful runs.
	OnlyFailures bool `yaml:"only_failures"`
}

// ChannelConfig is a single chat destination.
type ChannelConfig struct {
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether the channel is configured.
func (c ChannelConfig) Enabled() bool {
	return c.Channel != "" && c.TokenEnv != ""
}

// Token resolves the bot token from the configured env var.
func (c ChannelConfig) Token() string {
	return os.Getenv(c.TokenEnv)
}

// ScheduleConfig configures the daemon trigger.
type ScheduleConfig struct {
	Cron     string        `yaml:"cron"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// DashboardConfig configures the status API.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Mode  string `yaml:"mode"` // dev, prod
	Level string `yaml:"level"`
}

// TracingConfig configures run tracing.
type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"` // file path, empty for stdout
}

var cronFieldRe = regexp.MustCompile(`^\S+(\s+\S+){4}$`)

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "quill.db"
		}
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	case "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "quill"
	}

	if c.Policy.MaxActive == 0 {
		c.Policy.MaxActive = 3
	}
	if c.Policy.ReadinessThreshold == 0 {
		c.Policy.ReadinessThreshold = 85
	}
	if c.Policy.ProgressPrefilter == 0 {
		c.Policy.ProgressPrefilter = 0.8
	}
	if c.Policy.MaxClosingUnits == 0 {
		c.Policy.MaxClosingUnits = 3
	}
	if c.Policy.WorldRulesTarget == 0 {
		c.Policy.WorldRulesTarget = 5
	}

	if c.Validation.MinWords == 0 {
		c.Validation.MinWords = 800
	}
	if c.Validation.MaxWords == 0 {
		c.Validation.MaxWords = 6000
	}
	if c.Validation.DuplicateThreshold == 0 {
		c.Validation.DuplicateThreshold = 0.3
	}
	if c.Validation.MinQuality == 0 {
		c.Validation.MinQuality = 7.0
	}
	if c.Validation.Scorer == "" {
		c.Validation.Scorer = ScorerHeuristic
	}

	if c.Context.TokenBudget == 0 {
		c.Context.TokenBudget = 6000
	}
	if c.Context.RecentUnits == 0 {
		c.Context.RecentUnits = 5
	}
	if c.Context.DialogueExcerpts == 0 {
		c.Context.DialogueExcerpts = 6
	}
	if c.Context.Compression == "" {
		c.Context.Compression = "none"
	}

	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = 10 * time.Minute
	}

	if len(c.Concepts.Genres) == 0 {
		c.Concepts.Genres = []string{"fantasy", "mystery", "science-fiction", "romance", "thriller"}
	}
	if len(c.Concepts.Themes) == 0 {
		c.Concepts.Themes = []string{"redemption", "betrayal", "coming-of-age", "survival", "identity"}
	}
	if c.Concepts.MaxAttempts == 0 {
		c.Concepts.MaxAttempts = 10
	}

	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "none"
	}
	if c.Artifacts.Backend == "fs" && c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "works"
	}
	if c.Artifacts.GitHub.Branch == "" {
		c.Artifacts.GitHub.Branch = "main"
	}
	if c.Artifacts.GitHub.TokenEnv == "" {
		c.Artifacts.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if c.Artifacts.Redis.Addr == "" {
		c.Artifacts.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Artifacts.Redis.Prefix == "" {
		c.Artifacts.Redis.Prefix = "quill"
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 */6 * * *"
	}
	if c.Schedule.LeaseTTL == 0 {
		c.Schedule.LeaseTTL = 30 * time.Minute
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8480
	}

	if c.Logging.Mode == "" {
		c.Logging.Mode = "dev"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite, mysql, or postgres", c.Database.Driver))
	}

	if c.Policy.MaxActive < 1 {
		errs = append(errs, "policy.max_active must be at least 1")
	}
	if c.Policy.ReadinessThreshold < 0 || c.Policy.ReadinessThreshold > 100 {
		errs = append(errs, "policy.readiness_threshold must be between 0 and 100")
	}
	if c.Policy.ProgressPrefilter < 0 || c.Policy.ProgressPrefilter > 1 {
		errs = append(errs, "policy.progress_prefilter must be between 0 and 1")
	}
	if c.Policy.MaxClosingUnits < 1 {
		errs = append(errs, "policy.max_closing_units must be at least 1")
	}

	if c.Validation.MinWords < 1 {
		errs = append(errs, "validation.min_words must be positive")
	}
	if c.Validation.MaxWords < c.Validation.MinWords {
		errs = append(errs, "validation.max_words must be >= validation.min_words")
	}
	if c.Validation.DuplicateThreshold <= 0 || c.Validation.DuplicateThreshold > 1 {
		errs = append(errs, "validation.duplicate_threshold must be in (0, 1]")
	}
	if c.Validation.MinQuality < 0 || c.Validation.MinQuality > 10 {
		errs = append(errs, "validation.min_quality must be between 0 and 10")
	}
	switch c.Validation.Scorer {
	case ScorerHeuristic, ScorerSelfReported:
	default:
		errs = append(errs, fmt.Sprintf("validation.scorer %q must be heuristic or self_reported", c.Validation.Scorer))
	}
	for slug, o := range c.Validation.Overrides {
		r := c.Validation.Range(slug)
		if o.MinWords < 0 || o.MaxWords < 0 || r.MaxWords < r.MinWords {
			errs = append(errs, fmt.Sprintf("validation.overrides[%s] has an invalid range", slug))
		}
	}

	switch c.Context.Compression {
	case "none", "moderate", "aggressive":
	default:
		errs = append(errs, fmt.Sprintf("context.compression %q must be none, moderate, or aggressive", c.Context.Compression))
	}
	if c.Context.TokenBudget < 0 {
		errs = append(errs, "context.token_budget must not be negative")
	}

	if c.Generator.Timeout < 0 {
		errs = append(errs, "generator.timeout must not be negative")
	}

	switch c.Artifacts.Backend {
	case "none", "fs", "redis":
	case "github":
		if c.Artifacts.GitHub.Owner == "" || c.Artifacts.GitHub.Repo == "" {
			errs = append(errs, "artifacts.github.owner and artifacts.github.repo are required for the github backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("artifacts.backend %q must be none, fs, github, or redis", c.Artifacts.Backend))
	}

	if !cronFieldRe.MatchString(strings.TrimSpace(c.Schedule.Cron)) {
		errs = append(errs, fmt.Sprintf("schedule.cron %q must have five fields", c.Schedule.Cron))
	}

	switch c.Logging.Mode {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Sprintf("logging.mode %q must be dev or prod", c.Logging.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
