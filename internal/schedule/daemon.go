package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zulandar/quill/internal/bulletin"
	"github.com/zulandar/quill/internal/logging"
	"github.com/zulandar/quill/internal/orchestrator"
)

// Trigger marks runs started by the daemon.
const Trigger = "daemon"

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Next returns the first fire time of expr after from.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: parse %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// Runner executes one orchestrator run.
type Runner interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) *orchestrator.RunResult
}

// Daemon runs the orchestrator on a cron schedule. Each tick takes the
// lease, runs once, releases the lease and posts a bulletin. A tick that
// finds the lease held is skipped.
type Daemon struct {
	runner   Runner
	lease    *Lease
	notifier bulletin.Notifier
	log      *logging.Logger
	expr     string

	mu      sync.Mutex
	running bool
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Runner   Runner
	Lease    *Lease
	Notifier bulletin.Notifier // optional
	Log      *logging.Logger
	Cron     string
}

// NewDaemon validates opts and returns a Daemon.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("schedule: runner is required")
	}
	if opts.Lease == nil {
		return nil, fmt.Errorf("schedule: lease is required")
	}
	if _, err := cronParser.Parse(opts.Cron); err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", opts.Cron, err)
	}
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Daemon{
		runner:   opts.Runner,
		lease:    opts.Lease,
		notifier: opts.Notifier,
		log:      log.With("component", "daemon", "holder", opts.Lease.Holder()),
		expr:     opts.Cron,
	}, nil
}

// Start schedules ticks and blocks until ctx is cancelled. An in-flight
// tick is allowed to finish before Start returns.
func (d *Daemon) Start(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(d.expr, func() {
		if _, err := d.Tick(ctx); err != nil && !errors.Is(err, ErrLeaseHeld) {
			d.log.Error("scheduled run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule: add %q: %w", d.expr, err)
	}

	c.Start()
	if next, err := Next(d.expr, time.Now()); err == nil {
		d.log.Info("daemon started", "cron", d.expr, "next", next.Format(time.RFC3339))
	}

	<-ctx.Done()
	<-c.Stop().Done()
	d.log.Info("daemon stopped")
	return nil
}

// Tick performs one scheduled run. It returns ErrLeaseHeld (wrapped) when
// another process holds the lease, and the run's error when it failed.
func (d *Daemon) Tick(ctx context.Context) (*orchestrator.RunResult, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil, fmt.Errorf("schedule: tick: %w by this process", ErrLeaseHeld)
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	if err := d.lease.Acquire(ctx); err != nil {
		if errors.Is(err, ErrLeaseHeld) {
			d.log.Info("tick skipped", "reason", err.Error())
		}
		return nil, err
	}

	stop := d.keepAlive(ctx)
	res := d.runner.Run(ctx, orchestrator.RunOptions{Trigger: Trigger})
	stop()

	if err := d.lease.Release(context.WithoutCancel(ctx)); err != nil {
		d.log.Warn("lease release failed", "error", err)
	}

	d.log.Info("tick finished", "run_id", res.RunID, "success", res.Success, "action", res.Action.String(), "detail", res.Detail)
	d.notify(ctx, res)

	if !res.Success && res.Error != nil {
		return res, fmt.Errorf("schedule: run %s failed at %s: %s", res.RunID, res.Error.Stage, res.Error.Message)
	}
	return res, nil
}

// keepAlive heartbeats the lease at a third of its TTL until stopped.
func (d *Daemon) keepAlive(ctx context.Context) func() {
	interval := d.lease.ttl / 3
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.lease.Heartbeat(ctx); err != nil {
					d.log.Warn("lease heartbeat failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (d *Daemon) notify(ctx context.Context, res *orchestrator.RunResult) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(context.WithoutCancel(ctx), bulletin.FromRunResult(res)); err != nil {
		d.log.Warn("bulletin failed", "notifier", d.notifier.Name(), "error", err)
	}
}
