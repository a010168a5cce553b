// Package orchestrator runs one lifecycle step: analyze the situation,
// decide an action, generate, validate, and commit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/quill/internal/concept"
	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/continuity"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/generator"
	"github.com/zulandar/quill/internal/logging"
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/observability"
	"github.com/zulandar/quill/internal/policy"
	"github.com/zulandar/quill/internal/repository"
	"github.com/zulandar/quill/internal/validation"
	"github.com/zulandar/quill/internal/verdict"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// State is a run's position in the lifecycle.
type State string

const (
	StateIdle       State = "Idle"
	StateAnalyzing  State = "AnalyzingSituation"
	StateDeciding   State = "DecidingAction"
	StateExecuting  State = "ExecutingAction"
	StateValidating State = "Validating"
	StateCommitting State = "Committing"
	StateDone       State = "Done"
	StateError      State = "Error"
)

const (
	defaultTrigger = "manual"
	analyzeWorkers = 4
)

// Publisher writes committed Works and Units to an artifact store.
type Publisher interface {
	PublishWork(ctx context.Context, w *models.Work) error
	PublishUnits(ctx context.Context, w *models.Work, units []models.Unit) error
}

// Deps are the collaborators of an Orchestrator. DB and Generator are
// required; everything else has a default.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Generator generator.Generator
	Scorer    validation.Scorer
	Picker    *concept.Picker
	Publisher Publisher
	Log       *logging.Logger
	Tracer    trace.Tracer
	Now       func() time.Time
	NewID     func() string
}

// Orchestrator executes runs. It holds no per-run state; callers keep
// runs exclusive (see schedule.Lease).
type Orchestrator struct {
	db      *gorm.DB
	cfg     *config.Config
	gen     generator.Generator
	picker  *concept.Picker
	pub     Publisher
	log     *logging.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
	works   *repository.Works
	units   *repository.Units
	runs    *repository.Runs
	tracker *continuity.Tracker
	gate    *validation.Gate
	level   continuity.Compression
}

// New builds an Orchestrator from d.
func New(d Deps) (*Orchestrator, error) {
	if d.DB == nil {
		return nil, errors.New("orchestrator: database is required")
	}
	if d.Generator == nil {
		return nil, errors.New("orchestrator: generator is required")
	}
	o := &Orchestrator{
		db:     d.DB,
		cfg:    d.Config,
		gen:    d.Generator,
		picker: d.Picker,
		pub:    d.Publisher,
		log:    d.Log,
		tracer: d.Tracer,
		now:    d.Now,
		newID:  d.NewID,
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	if o.picker == nil {
		o.picker = concept.New(o.cfg.Concepts)
	}
	if o.log == nil {
		o.log = logging.Nop()
	}
	if o.tracer == nil {
		o.tracer = observability.NopTracer()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	level, err := continuity.ParseCompression(o.cfg.Context.Compression)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	o.level = level
	clock := repository.WithClock(o.now)
	o.works = repository.NewWorks(d.DB, clock)
	o.units = repository.NewUnits(d.DB, clock)
	o.runs = repository.NewRuns(d.DB)
	o.tracker = continuity.NewTracker(d.DB, o.cfg)
	o.gate = validation.New(o.cfg.Validation, nil, o.units, d.Scorer)
	return o, nil
}

// RunOptions adjust a single run.
type RunOptions struct {
	// DryRun stops after the decision; nothing is generated or written
	// except the run record.
	DryRun bool
	// Force replaces the decided action. Manual runs only.
	Force   *policy.Action
	Trigger string
}

// UnitRef names a committed Unit.
type UnitRef struct {
	WorkSlug string `json:"work_slug"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	Words    int    `json:"words"`
}

// RunError is the structured failure of a run.
type RunError struct {
	Stage   errs.Stage       `json:"stage"`
	Kind    errs.Kind        `json:"kind,omitempty"`
	Message string           `json:"message"`
	Reasons []verdict.Reason `json:"reasons,omitempty"`
}

// RunResult is the outcome of Run.
type RunResult struct {
	RunID      string            `json:"run_id"`
	Success    bool              `json:"success"`
	Action     policy.Action     `json:"action"`
	WorkSlug   string            `json:"work_slug,omitempty"`
	Detail     string            `json:"detail"`
	Situation  *policy.Situation `json:"situation,omitempty"`
	Committed  []UnitRef         `json:"committed,omitempty"`
	Validation *verdict.Result   `json:"validation,omitempty"`
	Error      *RunError         `json:"error,omitempty"`
	Trace      []State           `json:"trace"`
	DryRun     bool              `json:"dry_run,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run executes one lifecycle step. It never returns a partial commit:
// either every Unit of the action is committed or none is. The result is
// recorded as a RunRecord.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) *RunResult {
	res := &RunResult{
		RunID:     o.newID(),
		DryRun:    opts.DryRun,
		Trace:     []State{StateIdle},
		StartedAt: o.now(),
	}
	log := o.log.With("run_id", res.RunID)
	ctx, span := o.tracer.Start(ctx, "quill.run", trace.WithAttributes(
		attribute.String("quill.run_id", res.RunID),
		attribute.Bool("quill.dry_run", opts.DryRun),
	))
	defer span.End()

	err := o.run(ctx, res, opts, log)
	res.FinishedAt = o.now()
	span.SetAttributes(attribute.String("quill.action", res.Action.String()))
	if err != nil {
		res.Error = runError(err, res.Validation)
		res.Trace = append(res.Trace, StateError)
		observability.Fail(span, err)
		log.Warn("run failed", "stage", res.Error.Stage, "action", res.Action.String(), "error", res.Error.Message)
	} else {
		res.Success = true
		res.Trace = append(res.Trace, StateDone)
		log.Info("run finished", "action", res.Action.String(), "work", res.WorkSlug, "detail", res.Detail)
	}

	trigger := opts.Trigger
	if trigger == "" {
		trigger = defaultTrigger
	}
	o.record(ctx, res, trigger, log)
	return res
}

func (o *Orchestrator) run(ctx context.Context, res *RunResult, opts RunOptions, log *logging.Logger) error {
	err := o.stage(ctx, res, log, StateAnalyzing, errs.StageAnalyze, func(ctx context.Context) error {
		sit, err := o.Analyze(ctx)
		if err != nil {
			return err
		}
		res.Situation = sit
		return nil
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, res, log, StateDeciding, errs.StageDecide, func(ctx context.Context) error {
		if opts.Force == nil {
			res.Action = policy.Decide(*res.Situation)
			return nil
		}
		a, err := forced(*opts.Force, res.Situation)
		if err != nil {
			return err
		}
		res.Action = a
		return nil
	})
	if err != nil {
		return err
	}
	res.WorkSlug = res.Action.WorkSlug
	log = log.With("action", res.Action.String())
	log.Info("action decided", "reason", res.Action.Reason)

	if res.Action.Kind == policy.ActionNone {
		res.Detail = "no action: " + res.Action.Reason
		return nil
	}
	if opts.DryRun {
		res.Detail = fmt.Sprintf("dry run: would %s (%s)", res.Action, res.Action.Reason)
		return nil
	}

	x, err := o.plan(res)
	if err != nil {
		return errs.AtStage(errs.StageDecide, err)
	}
	if err := o.stage(ctx, res, log, StateExecuting, errs.StageExecute, x.generate); err != nil {
		return err
	}
	res.WorkSlug = x.slug()

	err = o.stage(ctx, res, log, StateValidating, errs.StageValidate, func(ctx context.Context) error {
		v, err := x.validate(ctx)
		if err != nil {
			return err
		}
		res.Validation = &v
		if !v.Passed {
			return errs.Validation("orchestrator: validate", "%s", v.Summary())
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, res, log, StateCommitting, errs.StageCommit, func(ctx context.Context) error {
		var refs []UnitRef
		err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			refs, err = x.commit(ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
		res.Committed = refs
		return nil
	})
	if err != nil {
		return err
	}
	res.Detail = x.detail()

	if err := o.publish(ctx, res); err != nil {
		return errs.AtStage(errs.StageCommit, fmt.Errorf(
			"units committed but publishing failed; run `quill export %s` to reconcile: %w", res.WorkSlug, err))
	}
	return nil
}

// stage runs fn as one traced lifecycle stage and tags its error.
func (o *Orchestrator) stage(ctx context.Context, res *RunResult, log *logging.Logger, st State, stage errs.Stage, fn func(context.Context) error) error {
	res.Trace = append(res.Trace, st)
	ctx, span := o.tracer.Start(ctx, "quill.stage."+strings.ToLower(string(stage)))
	defer span.End()
	log.Info("stage", "stage", stage, "action", res.Action.String(), "work", res.WorkSlug)
	if err := fn(ctx); err != nil {
		observability.Fail(span, err)
		return errs.AtStage(stage, err)
	}
	return nil
}

// forced checks a manually requested action against the situation.
func forced(a policy.Action, sit *policy.Situation) (policy.Action, error) {
	const op = "orchestrator: force"
	if a.Reason == "" {
		a.Reason = "forced"
	}
	switch a.Kind {
	case policy.ActionCreateNew, policy.ActionNone:
		a.WorkSlug = ""
		return a, nil
	case policy.ActionContinue, policy.ActionComplete:
	default:
		return a, errs.Validation(op, "unknown action %q", a.Kind)
	}
	if a.WorkSlug == "" {
		return a, errs.Validation(op, "%s requires a work slug", a.Kind)
	}
	for _, w := range sit.Works {
		if w.Slug != a.WorkSlug {
			continue
		}
		if a.Kind == policy.ActionContinue && w.Status != models.StatusActive {
			return a, errs.Domain(op, "cannot continue %s: status is %s", w.Slug, w.Status)
		}
		return a, nil
	}
	return a, errs.Domain(op, "work %s is not active", a.WorkSlug)
}

func runError(err error, v *verdict.Result) *RunError {
	re := &RunError{
		Stage:   errs.StageOf(err),
		Kind:    errs.KindOf(err),
		Message: err.Error(),
	}
	var se *errs.StageError
	if errors.As(err, &se) {
		re.Message = se.Err.Error()
	}
	if v != nil && !v.Passed {
		re.Reasons = v.Reasons
	}
	return re
}
