package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/quill/internal/concept"
	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/continuity"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/generator"
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/policy"
	"github.com/zulandar/quill/internal/prose"
	"github.com/zulandar/quill/internal/repository"
	"github.com/zulandar/quill/internal/validation"
	"github.com/zulandar/quill/internal/verdict"
	"gorm.io/gorm"
)

// execution carries one action through the generate, validate and commit
// stages.
type execution interface {
	generate(ctx context.Context) error
	validate(ctx context.Context) (verdict.Result, error)
	commit(ctx context.Context, tx *gorm.DB) ([]UnitRef, error)
	slug() string
	detail() string
}

func (o *Orchestrator) plan(res *RunResult) (execution, error) {
	a := res.Action
	switch a.Kind {
	case policy.ActionCreateNew:
		return &createWork{o: o, runID: res.RunID}, nil
	case policy.ActionContinue:
		return &continueWork{o: o, runID: res.RunID, work: a.WorkSlug}, nil
	case policy.ActionComplete:
		return &completeWork{o: o, runID: res.RunID, work: a.WorkSlug}, nil
	}
	return nil, errs.Validation("orchestrator: plan", "no execution for action %q", a.Kind)
}

// generate bounds a generator call by the configured timeout. Errors that
// are not already classified become generation errors.
func (o *Orchestrator) generate(ctx context.Context, op string, fn func(context.Context) error) error {
	timeout := o.cfg.Generator.Timeout
	gctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(gctx)
	if err == nil {
		return nil
	}
	if errs.KindOf(err) == errs.KindGeneration {
		return err
	}
	if errors.Is(gctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", err, timeout)
	}
	return errs.Generation("orchestrator: "+op, err)
}

func structural(format string, args ...interface{}) verdict.Reason {
	return verdict.Reason{
		Check:   verdict.CheckStructural,
		Kind:    errs.KindValidation,
		Code:    validation.CodeStructural,
		Message: fmt.Sprintf(format, args...),
	}
}

func fillCandidate(c *draft.Candidate, slug string, number int, kind string) {
	if c.WorkSlug == "" {
		c.WorkSlug = slug
	}
	if c.Number == 0 {
		c.Number = number
	}
	if c.Kind == "" {
		c.Kind = kind
	}
}

func unitOf(c draft.Candidate) models.Unit {
	return models.Unit{
		WorkSlug:  c.WorkSlug,
		Number:    c.Number,
		Title:     c.Title,
		Body:      c.Body,
		Summary:   c.Summary,
		Kind:      c.Kind,
		WordCount: prose.WordCount(prose.PlainText(c.Body)),
	}
}

func refOf(u models.Unit) UnitRef {
	return UnitRef{WorkSlug: u.WorkSlug, Number: u.Number, Title: u.Title, Kind: u.Kind, Words: u.WordCount}
}

// createWork starts a new Work from a fresh concept together with its
// first Unit.
type createWork struct {
	o       *Orchestrator
	runID   string
	concept concept.Concept
	out     *generator.NewWorkResult
	work    *models.Work
	first   draft.Candidate
	state   *continuity.State
}

func (x *createWork) slug() string {
	if x.work == nil {
		return ""
	}
	return x.work.Slug
}

func (x *createWork) generate(ctx context.Context) error {
	const op = "orchestrator: create work"
	used, err := x.o.works.Concepts(ctx)
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(used))
	for _, u := range used {
		taken[concept.KeyOf(u.Genre, u.Theme, u.Variant)] = true
	}
	x.concept, err = x.o.picker.Pick(taken)
	if err != nil {
		return errs.Domain(op, "%v", err)
	}

	global := x.o.cfg.Validation
	err = x.o.generate(ctx, generator.OpNewWork, func(ctx context.Context) error {
		out, err := x.o.gen.GenerateNewWork(ctx, generator.NewWorkOptions{
			RunID:    x.runID,
			Concept:  x.concept,
			MinWords: global.MinWords,
			MaxWords: global.MaxWords,
		})
		if err != nil {
			return err
		}
		if out == nil || out.FirstUnit == nil {
			return errs.Generation(op, errors.New("generator returned no first unit"))
		}
		x.out = out
		return nil
	})
	if err != nil {
		return err
	}

	d := x.out.Work
	tags := append(x.concept.Tags(), d.Tags...)
	x.work = &models.Work{
		Slug:         d.Slug,
		Title:        strings.TrimSpace(d.Title),
		Summary:      d.Summary,
		PlannedUnits: d.PlannedUnits,
		MinWords:     d.MinWords,
		MaxWords:     d.MaxWords,
		Genre:        x.concept.Genre,
		Theme:        x.concept.Theme,
		Variant:      x.concept.Variant,
		Tags:         repository.EncodeTags(dedupe(tags)),
	}
	x.first = *x.out.FirstUnit
	fillCandidate(&x.first, d.Slug, 1, models.UnitRegular)
	return nil
}

func (x *createWork) validate(ctx context.Context) (verdict.Result, error) {
	res := verdict.Pass()
	w := x.work
	if !repository.SlugPattern.MatchString(w.Slug) {
		res.Add(structural("invalid work slug %q", w.Slug))
	} else {
		exists, err := x.o.works.Exists(ctx, w.Slug)
		if err != nil {
			return res, err
		}
		if exists {
			res.Add(structural("work %q already exists", w.Slug))
		}
	}
	if w.Title == "" {
		res.Add(structural("work title is empty"))
	}
	if w.PlannedUnits < 1 {
		res.Add(structural("planned units must be at least 1, got %d", w.PlannedUnits))
	}
	if x.first.WorkSlug != w.Slug {
		res.Add(structural("first unit belongs to %q, not %q", x.first.WorkSlug, w.Slug))
	}

	x.state = continuity.Seeded(w.Slug, x.out.Seed)
	gate := x.o.gate.Scoped(x.state, validation.RangeFor(x.o.cfg.Validation, w)).Expecting(1)
	res.Merge(gate.Evaluate(ctx, x.first))
	return res, nil
}

func (x *createWork) commit(ctx context.Context, tx *gorm.DB) ([]UnitRef, error) {
	works := x.o.works.WithTx(tx)
	if _, err := works.Create(ctx, x.work); err != nil {
		return nil, err
	}
	u := unitOf(x.first)
	if _, err := x.o.units.WithTx(tx).Create(ctx, &u); err != nil {
		return nil, err
	}
	x.state.Apply(x.first)
	if err := x.o.tracker.WithTx(tx).Save(ctx, x.state); err != nil {
		return nil, err
	}
	if err := works.RecordUnits(ctx, x.work.Slug, 1, 0); err != nil {
		return nil, err
	}
	return []UnitRef{refOf(u)}, nil
}

func (x *createWork) detail() string {
	return fmt.Sprintf("created %s (%q, %s) with unit 1", x.work.Slug, x.work.Title, x.concept)
}

// continueWork adds the next Unit to an active Work.
type continueWork struct {
	o      *Orchestrator
	runID  string
	work   string
	w      *models.Work
	length config.LengthRange
	next   int
	cand   draft.Candidate
	ready  bool
}

func (x *continueWork) slug() string { return x.work }

func (x *continueWork) generate(ctx context.Context) error {
	w, err := x.o.works.Get(ctx, x.work)
	if err != nil {
		return err
	}
	if w.Status != models.StatusActive {
		return errs.Domain("orchestrator: continue", "cannot continue %s: status is %s", w.Slug, w.Status)
	}
	x.w = w
	x.length = validation.RangeFor(x.o.cfg.Validation, w)

	gc, err := x.o.tracker.BuildContext(ctx, w.Slug, x.o.level)
	if err != nil {
		return err
	}
	x.next = gc.NextNumber

	return x.o.generate(ctx, generator.OpNextUnit, func(ctx context.Context) error {
		c, err := x.o.gen.GenerateNextUnit(ctx, w.Slug, gc, generator.UnitOptions{
			RunID:    x.runID,
			Number:   x.next,
			MinWords: x.length.MinWords,
			MaxWords: x.length.MaxWords,
		})
		if err != nil {
			return err
		}
		if c == nil {
			return errs.Generation("orchestrator: continue", errors.New("generator returned no unit"))
		}
		x.cand = *c
		fillCandidate(&x.cand, w.Slug, x.next, models.UnitRegular)
		return nil
	})
}

func (x *continueWork) validate(ctx context.Context) (verdict.Result, error) {
	res := verdict.Pass()
	if x.cand.WorkSlug != x.work {
		res.Add(structural("unit belongs to %q, not %q", x.cand.WorkSlug, x.work))
		return res, nil
	}
	gate := x.o.gate.Scoped(x.o.tracker, x.length).Expecting(x.next)
	res.Merge(gate.Evaluate(ctx, x.cand))
	return res, nil
}

func (x *continueWork) commit(ctx context.Context, tx *gorm.DB) ([]UnitRef, error) {
	works := x.o.works.WithTx(tx)
	tracker := x.o.tracker.WithTx(tx)
	u := unitOf(x.cand)
	if _, err := x.o.units.WithTx(tx).Create(ctx, &u); err != nil {
		return nil, err
	}
	if err := tracker.Commit(ctx, x.cand); err != nil {
		return nil, err
	}
	if err := works.RecordUnits(ctx, x.work, 1, 0); err != nil {
		return nil, err
	}

	pol := x.o.cfg.Policy
	if policy.PassesPrefilter(u.Number, x.w.PlannedUnits, pol.ProgressPrefilter) {
		scores, err := tracker.Readiness(ctx, x.work)
		if err != nil {
			return nil, err
		}
		if scores.IsReady(pol.ReadinessThreshold) {
			if err := works.UpdateStatus(ctx, x.work, models.StatusCompletionReady); err != nil {
				return nil, err
			}
			x.ready = true
		}
	}
	return []UnitRef{refOf(u)}, nil
}

func (x *continueWork) detail() string {
	d := fmt.Sprintf("added unit %d to %s", x.next, x.work)
	if x.ready {
		d += "; work is now completion-ready"
	}
	return d
}

// completeWork writes the closing Units and the epilogue of a Work and
// marks it completed. The batch is validated in sequence against an
// in-memory state so later Units see the facts of earlier ones.
type completeWork struct {
	o      *Orchestrator
	runID  string
	work   string
	w      *models.Work
	length config.LengthRange
	next   int
	cands  []draft.Candidate
	state  *continuity.State
}

func (x *completeWork) slug() string { return x.work }

func (x *completeWork) generate(ctx context.Context) error {
	const op = "orchestrator: complete"
	w, err := x.o.works.Get(ctx, x.work)
	if err != nil {
		return err
	}
	if w.Status != models.StatusActive && w.Status != models.StatusCompletionReady {
		return errs.Domain(op, "cannot complete %s: status is %s", w.Slug, w.Status)
	}
	x.w = w
	x.length = validation.RangeFor(x.o.cfg.Validation, w)

	gc, err := x.o.tracker.BuildContext(ctx, w.Slug, x.o.level)
	if err != nil {
		return err
	}
	x.next = gc.NextNumber

	return x.o.generate(ctx, generator.OpCompleteWork, func(ctx context.Context) error {
		cands, err := x.o.gen.CompleteWork(ctx, w.Slug, gc, generator.CompletionOptions{
			RunID:      x.runID,
			FromNumber: x.next,
			MaxUnits:   x.o.cfg.Policy.MaxClosingUnits,
			MinWords:   x.length.MinWords,
			MaxWords:   x.length.MaxWords,
		})
		if err != nil {
			return err
		}
		if len(cands) == 0 {
			return errs.Generation(op, errors.New("generator returned no closing units"))
		}
		for i := range cands {
			kind := models.UnitClosing
			if i == len(cands)-1 {
				kind = models.UnitEpilogue
			}
			fillCandidate(&cands[i], w.Slug, x.next+i, kind)
		}
		x.cands = cands
		return nil
	})
}

func (x *completeWork) validate(ctx context.Context) (verdict.Result, error) {
	res := verdict.Pass()
	if limit := x.o.cfg.Policy.MaxClosingUnits; limit > 0 && len(x.cands) > limit {
		res.Add(structural("%d closing units exceed the maximum of %d", len(x.cands), limit))
	}
	if last := x.cands[len(x.cands)-1]; last.Kind != models.UnitEpilogue {
		res.Add(structural("last closing unit %d is %s, not an epilogue", last.Number, last.Kind))
	}
	for _, c := range x.cands {
		if c.WorkSlug != x.work {
			res.Add(structural("unit %d belongs to %q, not %q", c.Number, c.WorkSlug, x.work))
		}
	}
	if !res.Passed {
		return res, nil
	}

	state, err := x.o.tracker.Load(ctx, x.work)
	if err != nil {
		return res, err
	}
	var prior []string
	for i, c := range x.cands {
		gate := x.o.gate.Scoped(state, x.length).WithPrior(prior...).Expecting(x.next + i)
		res.Merge(gate.Evaluate(ctx, c))
		state.Apply(c)
		prior = append(prior, c.Body)
	}
	x.state = state
	return res, nil
}

func (x *completeWork) commit(ctx context.Context, tx *gorm.DB) ([]UnitRef, error) {
	units := x.o.units.WithTx(tx)
	works := x.o.works.WithTx(tx)
	refs := make([]UnitRef, 0, len(x.cands))
	for _, c := range x.cands {
		u := unitOf(c)
		if _, err := units.Create(ctx, &u); err != nil {
			return nil, err
		}
		refs = append(refs, refOf(u))
	}
	if err := x.o.tracker.WithTx(tx).Save(ctx, x.state); err != nil {
		return nil, err
	}
	if err := works.RecordUnits(ctx, x.work, len(x.cands), len(x.cands)); err != nil {
		return nil, err
	}
	if x.w.Status == models.StatusActive {
		if err := works.UpdateStatus(ctx, x.work, models.StatusCompletionReady); err != nil {
			return nil, err
		}
	}
	if err := works.UpdateStatus(ctx, x.work, models.StatusCompleted); err != nil {
		return nil, err
	}
	return refs, nil
}

func (x *completeWork) detail() string {
	last := x.next + len(x.cands) - 1
	return fmt.Sprintf("completed %s with %d closing unit(s) %d-%d", x.work, len(x.cands), x.next, last)
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		k := strings.ToLower(strings.TrimSpace(v))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
