package orchestrator

import (
	"context"

	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/policy"
	"github.com/zulandar/quill/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Analyze takes a read-only snapshot of the active Works. Readiness is
// only scored for Works past the progress prefilter; a Work already
// marked completion-ready stays ready.
func (o *Orchestrator) Analyze(ctx context.Context) (*policy.Situation, error) {
	active, err := o.works.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]policy.WorkState, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analyzeWorkers)
	for i, w := range active {
		g.Go(func() error {
			st, err := o.workState(gctx, w)
			if err != nil {
				return err
			}
			states[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sit := &policy.Situation{
		Works:           states,
		ActiveCount:     len(active),
		MaxActive:       o.cfg.Policy.MaxActive,
		CreateWhenStuck: o.cfg.Policy.CreateWhenStuck,
		TakenAt:         o.now(),
	}
	for _, st := range states {
		if sit.OldestUpdate.IsZero() || st.UpdatedAt.Before(sit.OldestUpdate) {
			sit.OldestUpdate = st.UpdatedAt
		}
	}
	return sit, nil
}

func (o *Orchestrator) workState(ctx context.Context, w repository.WorkSummary) (policy.WorkState, error) {
	p, err := o.works.GetProgress(ctx, w.Slug)
	if err != nil {
		return policy.WorkState{}, err
	}
	st := policy.WorkState{
		Slug:         w.Slug,
		Title:        w.Title,
		Status:       w.Status,
		UnitCount:    p.UnitCount,
		PlannedUnits: p.PlannedUnits,
		Progress:     p.Percent,
		UpdatedAt:    w.UpdatedAt,
	}
	marked := w.Status == models.StatusCompletionReady
	if marked || policy.PassesPrefilter(p.UnitCount, p.PlannedUnits, o.cfg.Policy.ProgressPrefilter) {
		scores, err := o.tracker.Readiness(ctx, w.Slug)
		if err != nil {
			return policy.WorkState{}, err
		}
		st.Readiness = scores
		st.Composite = scores.Composite()
		st.Ready = marked || scores.IsReady(o.cfg.Policy.ReadinessThreshold)
	}
	return st, nil
}
