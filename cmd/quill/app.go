package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/zulandar/quill/internal/artifact"
	"github.com/zulandar/quill/internal/bulletin"
	"github.com/zulandar/quill/internal/bulletin/discord"
	"github.com/zulandar/quill/internal/bulletin/slack"
	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/db"
	"github.com/zulandar/quill/internal/generator"
	"github.com/zulandar/quill/internal/logging"
	"github.com/zulandar/quill/internal/observability"
	"github.com/zulandar/quill/internal/orchestrator"
)

// app holds what every command needs: config, logger and database.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *logging.Logger
	v        *viper.Viper
	shutdown observability.Shutdown
}

// loadConfig reads the config file. A missing file at the default path
// yields the default configuration.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// openApp loads config, builds the logger and tracer, and connects to the
// database.
func openApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if l := v.GetString("log-level"); l != "" {
		level = l
	}
	log, err := logging.New(cfg.Logging.Mode, level)
	if err != nil {
		return nil, err
	}
	shutdown, err := observability.Init(cmd.Context(), cfg.Tracing, Version, log)
	if err != nil {
		return nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, db: gormDB, log: log, v: v, shutdown: shutdown}, nil
}

// Close flushes the tracer and logger and closes the database.
func (a *app) Close() {
	if a.shutdown != nil {
		_ = a.shutdown(context.Background())
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	a.log.Sync()
}

func (a *app) jsonOutput() bool { return a.v.GetBool("json") }

// orchestrator builds an Orchestrator with the configured generator and
// artifact publisher.
func (a *app) orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	gen, err := generator.NewCommand(a.cfg.Generator, a.db)
	if err != nil {
		return nil, err
	}
	return a.orchestratorWith(ctx, gen)
}

// analyzer builds an Orchestrator for read-only situation analysis. The
// generator is never called by Analyze, so no command is required.
func (a *app) analyzer(ctx context.Context) (*orchestrator.Orchestrator, error) {
	return a.orchestratorWith(ctx, &generator.Scripted{})
}

func (a *app) orchestratorWith(ctx context.Context, gen generator.Generator) (*orchestrator.Orchestrator, error) {
	pub, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	deps := orchestrator.Deps{
		DB:        a.db,
		Config:    a.cfg,
		Generator: gen,
		Log:       a.log,
		Tracer:    observability.Tracer(nil),
	}
	if pub != nil {
		deps.Publisher = pub
	}
	return orchestrator.New(deps)
}

// publisher returns the artifact publisher, or nil when the backend is none.
func (a *app) publisher(ctx context.Context) (*artifact.Publisher, error) {
	store, err := artifact.Open(ctx, a.cfg.Artifacts)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, nil
	}
	return artifact.NewPublisher(store, a.log), nil
}

// notifier builds the configured bulletin destinations, or nil when none
// are configured.
func (a *app) notifier() (bulletin.Notifier, error) {
	var m bulletin.Multi
	if c := a.cfg.Notify.Slack; c.Enabled() {
		n, err := slack.New(slack.Opts{Token: c.Token(), ChannelID: c.Channel})
		if err != nil {
			return nil, err
		}
		m = append(m, n)
	}
	if c := a.cfg.Notify.Discord; c.Enabled() {
		n, err := discord.New(discord.Opts{Token: c.Token(), ChannelID: c.Channel})
		if err != nil {
			return nil, err
		}
		m = append(m, n)
	}
	if len(m) == 0 {
		return nil, nil
	}
	var n bulletin.Notifier = m
	if a.cfg.Notify.OnlyFailures {
		n = bulletin.OnlyFailures(n)
	}
	return n, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
