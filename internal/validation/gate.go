// Package validation implements the gate every candidate Unit must pass
// before it is committed.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/prose"
	"github.com/zulandar/quill/internal/repository"
	"github.com/zulandar/quill/internal/verdict"
)

// Reason codes reported by the gate's own checks.
const (
	CodeStructural  = "StructuralError"
	CodeLength      = "LengthError"
	CodeDuplication = "DuplicationError"
	CodeQuality     = "QualityError"
	CodeStorage     = "StorageError"
)

// DefaultWindow is how many recent Units the duplication check compares
// against.
const DefaultWindow = 5

// History checks a candidate against accumulated continuity. Both the
// tracker (stored state) and an in-memory state satisfy it.
type History interface {
	ValidateAgainstHistory(ctx context.Context, c draft.Candidate) verdict.Result
}

// UnitSource supplies previously accepted Units for the duplication check.
type UnitSource interface {
	Recent(ctx context.Context, slug string, n int) ([]models.Unit, error)
}

// Gate runs the fixed battery of checks: structural, length, duplication,
// continuity, quality. Every check runs and all failures accumulate.
type Gate struct {
	history    History
	units      UnitSource
	scorer     Scorer
	length     config.LengthRange
	duplicate  float64
	minQuality float64
	window     int
	prior      []string
	next       int
}

// New builds a gate from the validation config. history and units may be
// nil, in which case the checks that need them pass trivially. A nil scorer
// is chosen by cfg.Scorer; generator-reported scores are ignored unless it
// is self_reported.
func New(cfg config.ValidationConfig, history History, units UnitSource, scorer Scorer) *Gate {
	if scorer == nil {
		scorer = HeuristicScorer{}
		if cfg.Scorer == config.ScorerSelfReported {
			scorer = SelfReportedScorer{}
		}
	}
	return &Gate{
		history:    history,
		units:      units,
		scorer:     scorer,
		length:     config.LengthRange{MinWords: cfg.MinWords, MaxWords: cfg.MaxWords},
		duplicate:  cfg.DuplicateThreshold,
		minQuality: cfg.MinQuality,
		window:     DefaultWindow,
	}
}

// Scoped returns a copy of the gate that checks continuity against
// history and length against r.
func (g *Gate) Scoped(history History, r config.LengthRange) *Gate {
	c := *g
	c.history = history
	c.length = r
	c.prior = append([]string(nil), g.prior...)
	return &c
}

// WithPrior returns a copy of the gate that also treats bodies as
// previously accepted text. Batches use it so later candidates are compared
// against earlier ones that are not stored yet.
func (g *Gate) WithPrior(bodies ...string) *Gate {
	c := *g
	c.prior = append(append([]string(nil), g.prior...), bodies...)
	return &c
}

// Expecting returns a copy of the gate that also requires the candidate to
// carry unit number n.
func (g *Gate) Expecting(n int) *Gate {
	c := *g
	c.next = n
	return &c
}

// Range returns the length bounds the gate enforces.
func (g *Gate) Range() config.LengthRange { return g.length }

// RangeFor resolves the length bounds for a Work: the Work's own bounds
// win, then the per-slug config override, then the global bounds.
func RangeFor(cfg config.ValidationConfig, w *models.Work) config.LengthRange {
	r := cfg.Range(w.Slug)
	if w.MinWords > 0 {
		r.MinWords = w.MinWords
	}
	if w.MaxWords > 0 {
		r.MaxWords = w.MaxWords
	}
	return r
}

// Evaluate is the single entry point of the gate.
func (g *Gate) Evaluate(ctx context.Context, c draft.Candidate) verdict.Result {
	res := verdict.Pass()
	text := prose.PlainText(c.Body)

	res.Merge(g.structural(c))
	res.Merge(g.lengthCheck(text))
	res.Merge(g.duplication(ctx, c, text))
	if g.history != nil {
		res.Merge(g.history.ValidateAgainstHistory(ctx, c))
	}
	res.Merge(g.quality(c, text))
	return res
}

func fail(check string, kind errs.Kind, code, format string, args ...interface{}) verdict.Result {
	return verdict.Fail(verdict.Reason{
		Check:   check,
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (g *Gate) structural(c draft.Candidate) verdict.Result {
	res := verdict.Pass()
	add := func(format string, args ...interface{}) {
		res.Merge(fail(verdict.CheckStructural, errs.KindValidation, CodeStructural, format, args...))
	}
	if !repository.SlugPattern.MatchString(c.WorkSlug) {
		add("invalid work slug %q", c.WorkSlug)
	}
	if c.Number < 1 {
		add("unit number must be positive, got %d", c.Number)
	} else if g.next > 0 && c.Number != g.next {
		add("unit number %d is out of sequence: next number is %d", c.Number, g.next)
	}
	if strings.TrimSpace(c.Title) == "" {
		add("title is empty")
	}
	if strings.TrimSpace(c.Body) == "" {
		add("body is empty")
	}
	switch c.Kind {
	case "", models.UnitRegular, models.UnitClosing, models.UnitEpilogue:
	default:
		add("unknown unit kind %q", c.Kind)
	}
	return res
}

// lengthCheck enforces [min, max] inclusive. A zero max means unbounded.
func (g *Gate) lengthCheck(text string) verdict.Result {
	words := prose.WordCount(text)
	if g.length.MinWords > 0 && words < g.length.MinWords {
		return fail(verdict.CheckLength, errs.KindValidation, CodeLength, "%d < %d", words, g.length.MinWords)
	}
	if g.length.MaxWords > 0 && words > g.length.MaxWords {
		return fail(verdict.CheckLength, errs.KindValidation, CodeLength, "%d > %d", words, g.length.MaxWords)
	}
	return verdict.Pass()
}

func (g *Gate) duplication(ctx context.Context, c draft.Candidate, text string) verdict.Result {
	if g.duplicate <= 0 {
		return verdict.Pass()
	}
	prior := append([]string(nil), g.prior...)
	if g.units != nil && repository.SlugPattern.MatchString(c.WorkSlug) {
		recent, err := g.units.Recent(ctx, c.WorkSlug, g.window)
		if err != nil {
			return fail(verdict.CheckDuplication, errs.KindStorage, CodeStorage, "load recent units: %v", err)
		}
		for _, u := range recent {
			prior = append(prior, prose.PlainText(u.Body))
		}
	}
	ratio := DuplicationRatio(text, prior)
	if ratio >= g.duplicate {
		return fail(verdict.CheckDuplication, errs.KindValidation, CodeDuplication, "%.2f >= %.2f", ratio, g.duplicate)
	}
	return verdict.Pass()
}

func (g *Gate) quality(c draft.Candidate, text string) verdict.Result {
	s := g.scorer.Score(c, text)
	overall := Overall(s)
	if overall+1e-9 < g.minQuality {
		return fail(verdict.CheckQuality, errs.KindValidation, CodeQuality, "%.2f < %.2f (plot %.1f, character %.1f, style %.1f, tone %.1f)",
			overall, g.minQuality, s.Plot, s.Character, s.Style, s.Tone)
	}
	return verdict.Pass()
}
