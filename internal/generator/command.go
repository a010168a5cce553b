package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/continuity"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/gorm"
)

// Request is the JSON document written to the generator's stdin.
type Request struct {
	Operation string                        `json:"operation"`
	WorkSlug  string                        `json:"work_slug,omitempty"`
	Context   string                        `json:"context,omitempty"`
	Packet    *continuity.GenerationContext `json:"packet,omitempty"`
	Options   interface{}                   `json:"options"`
}

type completion struct {
	Units []draft.Candidate `json:"units"`
}

// Command runs an external executable per operation. The executable reads
// one Request from stdin and writes one JSON response to stdout.
type Command struct {
	Argv    []string
	Dir     string
	Timeout time.Duration

	logFn func(models.GenerationLog) error
}

// NewCommand builds a Command from config. When db is non-nil every call
// is recorded as a GenerationLog row.
func NewCommand(cfg config.GeneratorConfig, db *gorm.DB) (*Command, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("generator: command is required")
	}
	c := &Command{Argv: cfg.Command, Dir: cfg.Dir, Timeout: cfg.Timeout}
	if db != nil {
		c.logFn = func(l models.GenerationLog) error { return db.Create(&l).Error }
	}
	return c, nil
}

func (c *Command) GenerateNewWork(ctx context.Context, opts NewWorkOptions) (*NewWorkResult, error) {
	var out NewWorkResult
	req := Request{Operation: OpNewWork, Options: opts}
	if err := c.call(ctx, opts.RunID, req, &out); err != nil {
		return nil, err
	}
	if out.FirstUnit != nil {
		normalizeUnit(out.FirstUnit, out.Work.Slug, 1, models.UnitRegular)
	}
	return &out, nil
}

func (c *Command) GenerateNextUnit(ctx context.Context, slug string, gc *continuity.GenerationContext, opts UnitOptions) (*draft.Candidate, error) {
	var out draft.Candidate
	req := Request{Operation: OpNextUnit, WorkSlug: slug, Context: render(gc), Packet: gc, Options: opts}
	if err := c.call(ctx, opts.RunID, req, &out); err != nil {
		return nil, err
	}
	normalizeUnit(&out, slug, opts.Number, models.UnitRegular)
	return &out, nil
}

func (c *Command) CompleteWork(ctx context.Context, slug string, gc *continuity.GenerationContext, opts CompletionOptions) ([]draft.Candidate, error) {
	var out completion
	req := Request{Operation: OpCompleteWork, WorkSlug: slug, Context: render(gc), Packet: gc, Options: opts}
	if err := c.call(ctx, opts.RunID, req, &out); err != nil {
		return nil, err
	}
	normalizeClosing(out.Units, slug, opts)
	return out.Units, nil
}

// call runs the executable once and decodes its stdout into out. Every
// failure, including a timeout, is a generation error.
func (c *Command) call(ctx context.Context, runID string, req Request, out interface{}) error {
	op := "generator: " + req.Operation
	payload, err := json.Marshal(req)
	if err != nil {
		return errs.Generation(op, fmt.Errorf("encode request: %w", err))
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := c.build(ctx)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	latency := time.Since(start)

	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w after %s", ctx.Err(), latency.Round(time.Millisecond))
	case runErr != nil:
		err = fmt.Errorf("%w: %s", runErr, tail(stderr.String(), 400))
	default:
		if decodeErr := json.Unmarshal(stdout.Bytes(), out); decodeErr != nil {
			err = fmt.Errorf("decode response: %w", decodeErr)
		}
	}

	c.record(models.GenerationLog{
		RunID:         runID,
		WorkSlug:      req.WorkSlug,
		Operation:     req.Operation,
		RequestBytes:  len(payload),
		ResponseBytes: stdout.Len(),
		LatencyMs:     latency.Milliseconds(),
		Error:         errString(err),
		CreatedAt:     start,
	})

	if err != nil {
		return errs.Generation(op, err)
	}
	return nil
}

func (c *Command) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

func (c *Command) record(l models.GenerationLog) {
	if c.logFn == nil {
		return
	}
	// Logging failures never fail the generation call.
	_ = c.logFn(l)
}

func render(gc *continuity.GenerationContext) string {
	if gc == nil {
		return ""
	}
	return gc.Render()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// tail keeps at most the last n bytes of s, cut on a rune boundary.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}

// IsTimeout reports whether a generation error was caused by the call's
// deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
