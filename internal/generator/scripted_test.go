package generator

import (
	"context"
	"testing"

	"github.com/zulandar/quill/internal/continuity"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
)

func TestScripted_UnsetFails(t *testing.T) {
	s := &Scripted{}
	if _, err := s.GenerateNewWork(context.Background(), NewWorkOptions{}); !errs.Is(err, errs.KindGeneration) {
		t.Errorf("GenerateNewWork err = %v", err)
	}
	if _, err := s.GenerateNextUnit(context.Background(), "a", nil, UnitOptions{}); !errs.Is(err, errs.KindGeneration) {
		t.Errorf("GenerateNextUnit err = %v", err)
	}
	if _, err := s.CompleteWork(context.Background(), "a", nil, CompletionOptions{}); !errs.Is(err, errs.KindGeneration) {
		t.Errorf("CompleteWork err = %v", err)
	}
	calls := s.Calls()
	if len(calls) != 3 || calls[0] != OpNewWork || calls[1] != "next_unit:a" || calls[2] != "complete_work:a" {
		t.Errorf("Calls() = %v", calls)
	}
}

func TestScripted_Normalizes(t *testing.T) {
	s := &Scripted{
		NewWork: func(context.Context, NewWorkOptions) (*NewWorkResult, error) {
			return &NewWorkResult{Work: draft.WorkDraft{Slug: "w"}, FirstUnit: &draft.Candidate{Title: "1"}}, nil
		},
		NextUnit: func(context.Context, string, *continuity.GenerationContext, UnitOptions) (*draft.Candidate, error) {
			return &draft.Candidate{Title: "next"}, nil
		},
		Complete: func(context.Context, string, *continuity.GenerationContext, CompletionOptions) ([]draft.Candidate, error) {
			return []draft.Candidate{{Title: "a"}, {Title: "b"}, {Title: "c"}}, nil
		},
	}
	ctx := context.Background()

	nw, _ := s.GenerateNewWork(ctx, NewWorkOptions{})
	if nw.FirstUnit.WorkSlug != "w" || nw.FirstUnit.Number != 1 {
		t.Errorf("first unit = %+v", nw.FirstUnit)
	}
	next, _ := s.GenerateNextUnit(ctx, "w", nil, UnitOptions{Number: 2})
	if next.WorkSlug != "w" || next.Number != 2 || next.Kind != models.UnitRegular {
		t.Errorf("next = %+v", next)
	}
	closing, _ := s.CompleteWork(ctx, "w", nil, CompletionOptions{FromNumber: 3})
	kinds := []string{closing[0].Kind, closing[1].Kind, closing[2].Kind}
	if kinds[0] != models.UnitClosing || kinds[1] != models.UnitClosing || kinds[2] != models.UnitEpilogue {
		t.Errorf("kinds = %v", kinds)
	}
	if closing[2].Number != 5 {
		t.Errorf("last number = %d, want 5", closing[2].Number)
	}
}
