// Package generator defines the content generator Quill consumes and its
// adapters.
package generator

import (
	"context"

	"github.com/zulandar/quill/internal/concept"
	"github.com/zulandar/quill/internal/continuity"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/models"
)

// Operation names, as sent to external generators.
const (
	OpNewWork      = "new_work"
	OpNextUnit     = "next_unit"
	OpCompleteWork = "complete_work"
)

// NewWorkOptions parameterizes a new Work.
type NewWorkOptions struct {
	RunID    string          `json:"run_id,omitempty"`
	Concept  concept.Concept `json:"concept"`
	MinWords int             `json:"min_words"`
	MaxWords int             `json:"max_words"`
}

// NewWorkResult is a proposed Work with its initial continuity seed and,
// optionally, its first Unit.
type NewWorkResult struct {
	Work      draft.WorkDraft  `json:"work"`
	Seed      draft.Seed       `json:"seed"`
	FirstUnit *draft.Candidate `json:"first_unit,omitempty"`
}

// UnitOptions parameterizes the next Unit of a Work.
type UnitOptions struct {
	RunID    string `json:"run_id,omitempty"`
	Number   int    `json:"number"`
	MinWords int    `json:"min_words"`
	MaxWords int    `json:"max_words"`
}

// CompletionOptions parameterizes the closing Units of a Work.
type CompletionOptions struct {
	RunID      string `json:"run_id,omitempty"`
	FromNumber int    `json:"from_number"`
	MaxUnits   int    `json:"max_units"`
	MinWords   int    `json:"min_words"`
	MaxWords   int    `json:"max_words"`
}

// Generator produces candidate content. Implementations must honor ctx;
// the orchestrator bounds every call with the configured timeout.
type Generator interface {
	GenerateNewWork(ctx context.Context, opts NewWorkOptions) (*NewWorkResult, error)
	GenerateNextUnit(ctx context.Context, slug string, gc *continuity.GenerationContext, opts UnitOptions) (*draft.Candidate, error)
	CompleteWork(ctx context.Context, slug string, gc *continuity.GenerationContext, opts CompletionOptions) ([]draft.Candidate, error)
}

// normalizeUnit fills the fields a generator may leave implicit.
func normalizeUnit(c *draft.Candidate, slug string, number int, kind string) {
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

// normalizeClosing numbers closing Units from opts.FromNumber and marks the
// last one as the epilogue.
func normalizeClosing(units []draft.Candidate, slug string, opts CompletionOptions) {
	for i := range units {
		kind := models.UnitClosing
		if i == len(units)-1 {
			kind = models.UnitEpilogue
		}
		normalizeUnit(&units[i], slug, opts.FromNumber+i, kind)
	}
}
