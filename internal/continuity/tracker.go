package continuity

import (
	"context"

	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/policy"
	"github.com/zulandar/quill/internal/repository"
	"github.com/zulandar/quill/internal/verdict"
	"gorm.io/gorm"
)

// Tracker loads, checks, and commits per-Work continuity state.
type Tracker struct {
	db    *gorm.DB
	works *repository.Works
	units *repository.Units
	cfg   config.ContextConfig
	pol   config.PolicyConfig
}

// NewTracker returns a Tracker backed by db.
func NewTracker(db *gorm.DB, cfg *config.Config) *Tracker {
	return &Tracker{
		db:    db,
		works: repository.NewWorks(db),
		units: repository.NewUnits(db),
		cfg:   cfg.Context,
		pol:   cfg.Policy,
	}
}

// WithTx returns a copy of the tracker bound to tx.
func (t *Tracker) WithTx(tx *gorm.DB) *Tracker {
	c := *t
	c.db = tx
	c.works = t.works.WithTx(tx)
	c.units = t.units.WithTx(tx)
	return &c
}

// Load returns the current state of a Work.
func (t *Tracker) Load(ctx context.Context, slug string) (*State, error) {
	return load(ctx, t.db, slug)
}

// BuildContext assembles the generation context for the next Unit of a
// Work at the given compression level.
func (t *Tracker) BuildContext(ctx context.Context, slug string, level Compression) (*GenerationContext, error) {
	w, err := t.works.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	s, err := t.Load(ctx, slug)
	if err != nil {
		return nil, err
	}
	window := t.cfg.RecentUnits
	if window < 1 {
		window = 1
	}
	recent, err := t.units.Recent(ctx, slug, window)
	if err != nil {
		return nil, err
	}
	latest, err := t.units.LatestNumber(ctx, slug)
	if err != nil {
		return nil, err
	}
	return buildContext(contextInput{
		work:     w,
		state:    s,
		recent:   recent,
		next:     latest + 1,
		level:    level,
		budget:   t.cfg.TokenBudget,
		window:   window,
		excerpts: t.cfg.DialogueExcerpts,
	}), nil
}

// ValidateAgainstHistory checks a candidate against the stored state of
// its Work. A load failure fails the check.
func (t *Tracker) ValidateAgainstHistory(ctx context.Context, c draft.Candidate) verdict.Result {
	s, err := t.Load(ctx, c.WorkSlug)
	if err != nil {
		return verdict.Fail(verdict.Reason{
			Check:   verdict.CheckContinuity,
			Kind:    errs.KindStorage,
			Code:    "StorageError",
			Message: err.Error(),
		})
	}
	return s.Check(c)
}

// Commit folds an accepted Unit into the stored state. It is the only
// mutator of continuity state; callers run it inside the same transaction
// that inserts the Unit.
func (t *Tracker) Commit(ctx context.Context, c draft.Candidate) error {
	s, err := t.Load(ctx, c.WorkSlug)
	if err != nil {
		return err
	}
	if c.Number <= s.LastUnit {
		return errs.Validation("continuity: commit", "unit %d of %s already committed (duplicate)", c.Number, c.WorkSlug)
	}
	s.Apply(c)
	return s.save(ctx, t.db)
}

// Save persists a state built in memory, such as a seeded new Work or a
// batch of closing Units applied in sequence.
func (t *Tracker) Save(ctx context.Context, s *State) error {
	return s.save(ctx, t.db)
}

// Readiness computes completion sub-scores for a Work.
func (t *Tracker) Readiness(ctx context.Context, slug string) (policy.ReadinessScores, error) {
	w, err := t.works.Get(ctx, slug)
	if err != nil {
		return policy.ReadinessScores{}, err
	}
	units, err := t.units.Count(ctx, slug)
	if err != nil {
		return policy.ReadinessScores{}, err
	}
	s, err := t.Load(ctx, slug)
	if err != nil {
		return policy.ReadinessScores{}, err
	}
	return s.Readiness(units, w.PlannedUnits, t.pol.WorldRulesTarget), nil
}
