// Package policy decides the single action of a run from a Situation.
package policy

import (
	"fmt"
	"sort"
	"time"
)

// ActionKind is the decided action.
type ActionKind string

const (
	ActionCreateNew ActionKind = "CreateNew"
	ActionContinue  ActionKind = "Continue"
	ActionComplete  ActionKind = "Complete"
	ActionNone      ActionKind = "NoAction"
)

// Action is the output of Decide. Reason explains which rule fired.
type Action struct {
	Kind     ActionKind `json:"kind"`
	WorkSlug string     `json:"work_slug,omitempty"`
	Reason   string     `json:"reason"`
}

func (a Action) String() string {
	if a.WorkSlug == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.WorkSlug)
}

// WorkState is one Work as seen by the policy.
type WorkState struct {
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Status       string          `json:"status"`
	UnitCount    int             `json:"unit_count"`
	PlannedUnits int             `json:"planned_units"`
	Progress     float64         `json:"progress"` // percent of planned units
	Readiness    ReadinessScores `json:"readiness"`
	Composite    float64         `json:"composite"`
	Ready        bool            `json:"ready"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Situation is the read-only snapshot one decision is made from.
type Situation struct {
	Works           []WorkState `json:"works"`
	ActiveCount     int         `json:"active_count"`
	MaxActive       int         `json:"max_active"`
	CreateWhenStuck bool        `json:"create_when_stuck"`
	OldestUpdate    time.Time   `json:"oldest_update"`
	TakenAt         time.Time   `json:"taken_at"`
}

// BelowMax reports whether another Work may be started.
func (s Situation) BelowMax() bool {
	return s.ActiveCount < s.MaxActive
}

// Ready returns the slugs of completion-ready Works in ascending order.
func (s Situation) Ready() []string {
	var out []string
	for _, w := range s.Works {
		if w.Ready {
			out = append(out, w.Slug)
		}
	}
	sort.Strings(out)
	return out
}

// Continuable returns the Works that may receive another Unit: active and
// not ready, oldest update first, ties by slug.
func (s Situation) Continuable() []WorkState {
	var out []WorkState
	for _, w := range s.Works {
		if w.Status == "active" && !w.Ready {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

// Decide applies the rules in order; the first that matches wins.
//  1. a completion-ready Work exists: complete the lowest slug
//  2. fewer active Works than the maximum: start a new one
//  3. a continuable Work exists: continue the least recently updated
//  4. otherwise start a new Work only when configured to, else do nothing
func Decide(s Situation) Action {
	if ready := s.Ready(); len(ready) > 0 {
		return Action{
			Kind:     ActionComplete,
			WorkSlug: ready[0],
			Reason:   fmt.Sprintf("%d work(s) completion-ready; %s has the lowest slug", len(ready), ready[0]),
		}
	}
	if s.BelowMax() {
		return Action{
			Kind:   ActionCreateNew,
			Reason: fmt.Sprintf("active count %d is below maximum %d", s.ActiveCount, s.MaxActive),
		}
	}
	if cont := s.Continuable(); len(cont) > 0 {
		w := cont[0]
		return Action{
			Kind:     ActionContinue,
			WorkSlug: w.Slug,
			Reason:   fmt.Sprintf("%s has the oldest update (%s)", w.Slug, w.UpdatedAt.UTC().Format(time.RFC3339)),
		}
	}
	if s.CreateWhenStuck {
		return Action{Kind: ActionCreateNew, Reason: "no continuable work; create-when-stuck is set"}
	}
	return Action{Kind: ActionNone, Reason: "no continuable work and active count is at maximum"}
}
