package generator

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/quill/internal/continuity"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
)

// Scripted is an in-process Generator driven by functions. It backs tests
// and dry runs; an unset function fails the call.
type Scripted struct {
	NewWork  func(ctx context.Context, opts NewWorkOptions) (*NewWorkResult, error)
	NextUnit func(ctx context.Context, slug string, gc *continuity.GenerationContext, opts UnitOptions) (*draft.Candidate, error)
	Complete func(ctx context.Context, slug string, gc *continuity.GenerationContext, opts CompletionOptions) ([]draft.Candidate, error)

	mu    sync.Mutex
	calls []string
}

// Calls returns the operations invoked so far, as "op" or "op:slug".
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Scripted) note(op, slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slug != "" {
		op += ":" + slug
	}
	s.calls = append(s.calls, op)
}

func unscripted(op string) error {
	return errs.Generation("generator: "+op, fmt.Errorf("no scripted response"))
}

func (s *Scripted) GenerateNewWork(ctx context.Context, opts NewWorkOptions) (*NewWorkResult, error) {
	s.note(OpNewWork, "")
	if s.NewWork == nil {
		return nil, unscripted(OpNewWork)
	}
	res, err := s.NewWork(ctx, opts)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	if res.FirstUnit != nil {
		normalizeUnit(res.FirstUnit, res.Work.Slug, 1, models.UnitRegular)
	}
	return res, nil
}

func (s *Scripted) GenerateNextUnit(ctx context.Context, slug string, gc *continuity.GenerationContext, opts UnitOptions) (*draft.Candidate, error) {
	s.note(OpNextUnit, slug)
	if s.NextUnit == nil {
		return nil, unscripted(OpNextUnit)
	}
	c, err := s.NextUnit(ctx, slug, gc, opts)
	if err != nil {
		return nil, err
	}
	if c != nil {
		normalizeUnit(c, slug, opts.Number, models.UnitRegular)
	}
	return c, nil
}

func (s *Scripted) CompleteWork(ctx context.Context, slug string, gc *continuity.GenerationContext, opts CompletionOptions) ([]draft.Candidate, error) {
	s.note(OpCompleteWork, slug)
	if s.Complete == nil {
		return nil, unscripted(OpCompleteWork)
	}
	units, err := s.Complete(ctx, slug, gc, opts)
	if err != nil {
		return nil, err
	}
	normalizeClosing(units, slug, opts)
	return units, nil
}
