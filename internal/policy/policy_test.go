package policy

import (
	"math"
	"testing"
	"time"
)

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time { return now.Add(-time.Duration(d) * 24 * time.Hour) }

func TestDecide_CompleteLowestReadySlug(t *testing.T) {
	s := Situation{
		Works: []WorkState{
			{Slug: "zephyr", Status: "completion-ready", Ready: true},
			{Slug: "amber", Status: "active", Ready: true},
			{Slug: "cobalt", Status: "active"},
		},
		ActiveCount: 3,
		MaxActive:   5,
	}
	got := Decide(s)
	if got.Kind != ActionComplete || got.WorkSlug != "amber" {
		t.Errorf("Decide() = %v, want Complete(amber)", got)
	}
}

func TestDecide_CreateWhenBelowMax(t *testing.T) {
	s := Situation{ActiveCount: 0, MaxActive: 3}
	if got := Decide(s); got.Kind != ActionCreateNew {
		t.Errorf("Decide() = %v, want CreateNew", got)
	}

	s = Situation{
		Works:       []WorkState{{Slug: "amber", Status: "active", UpdatedAt: daysAgo(9)}},
		ActiveCount: 1,
		MaxActive:   3,
	}
	if got := Decide(s); got.Kind != ActionCreateNew {
		t.Errorf("Decide() with room = %v, want CreateNew", got)
	}
}

func TestDecide_ContinueOldest(t *testing.T) {
	s := Situation{
		Works: []WorkState{
			{Slug: "b", Status: "active", UpdatedAt: daysAgo(1)},
			{Slug: "a", Status: "active", UpdatedAt: daysAgo(3)},
		},
		ActiveCount: 2,
		MaxActive:   2,
	}
	got := Decide(s)
	if got.Kind != ActionContinue || got.WorkSlug != "a" {
		t.Errorf("Decide() = %v, want Continue(a)", got)
	}
}

func TestDecide_ContinueTieBreaksBySlug(t *testing.T) {
	ts := daysAgo(2)
	s := Situation{
		Works: []WorkState{
			{Slug: "mango", Status: "active", UpdatedAt: ts},
			{Slug: "kiwi", Status: "active", UpdatedAt: ts},
			{Slug: "lime", Status: "active", UpdatedAt: ts},
		},
		ActiveCount: 3,
		MaxActive:   3,
	}
	if got := Decide(s); got.WorkSlug != "kiwi" {
		t.Errorf("Decide() = %v, want Continue(kiwi)", got)
	}
}

func TestDecide_PausedIsNotContinuable(t *testing.T) {
	s := Situation{
		Works:       []WorkState{{Slug: "a", Status: "paused", UpdatedAt: daysAgo(5)}},
		ActiveCount: 1,
		MaxActive:   1,
	}
	if got := Decide(s); got.Kind != ActionNone {
		t.Errorf("Decide() = %v, want NoAction", got)
	}
	s.CreateWhenStuck = true
	if got := Decide(s); got.Kind != ActionCreateNew {
		t.Errorf("Decide() stuck = %v, want CreateNew", got)
	}
}

func TestDecide_ReadyBeatsEverything(t *testing.T) {
	// Even with room to create, a ready work is completed first.
	s := Situation{
		Works:       []WorkState{{Slug: "a", Status: "active", Ready: true}},
		ActiveCount: 1,
		MaxActive:   10,
	}
	if got := Decide(s); got.Kind != ActionComplete {
		t.Errorf("Decide() = %v, want Complete", got)
	}
}

func TestDecide_ReasonIsSet(t *testing.T) {
	for _, s := range []Situation{
		{MaxActive: 1},
		{ActiveCount: 1, MaxActive: 1},
		{Works: []WorkState{{Slug: "a", Status: "active"}}, ActiveCount: 1, MaxActive: 1},
	} {
		if Decide(s).Reason == "" {
			t.Errorf("Decide(%+v) has empty reason", s)
		}
	}
}

func TestAction_String(t *testing.T) {
	if got := (Action{Kind: ActionComplete, WorkSlug: "a"}).String(); got != "Complete(a)" {
		t.Errorf("String() = %q", got)
	}
	if got := (Action{Kind: ActionCreateNew}).String(); got != "CreateNew" {
		t.Errorf("String() = %q", got)
	}
}

func TestReadiness_Composite(t *testing.T) {
	tests := []struct {
		name   string
		scores ReadinessScores
		want   float64
		ready  bool
	}{
		{"all perfect", ReadinessScores{100, 100, 100, 100}, 100, true},
		{"weighted", ReadinessScores{Plot: 100, Character: 80, Relationship: 80, World: 100}, 90, true},
		{"at threshold", ReadinessScores{85, 85, 85, 85}, 85, true},
		{"below", ReadinessScores{Plot: 100, Character: 40, Relationship: 40, World: 40}, 58, false},
		{"clamped", ReadinessScores{Plot: 500, Character: -20, Relationship: 0, World: 0}, 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.scores.Composite()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Composite() = %v, want %v", got, tt.want)
			}
			if tt.scores.IsReady(85) != tt.ready {
				t.Errorf("IsReady(85) = %v, want %v", !tt.ready, tt.ready)
			}
		})
	}
}

func TestPassesPrefilter(t *testing.T) {
	if !PassesPrefilter(8, 10, 0.8) {
		t.Error("8/10 should pass 0.8")
	}
	if PassesPrefilter(7, 10, 0.8) {
		t.Error("7/10 should not pass 0.8")
	}
	if PassesPrefilter(5, 0, 0.8) {
		t.Error("unplanned works never pass")
	}
}

func TestSituation_Continuable(t *testing.T) {
	s := Situation{Works: []WorkState{
		{Slug: "c", Status: "active", UpdatedAt: daysAgo(1)},
		{Slug: "a", Status: "active", Ready: true, UpdatedAt: daysAgo(9)},
		{Slug: "b", Status: "active", UpdatedAt: daysAgo(4)},
		{Slug: "d", Status: "completion-ready", UpdatedAt: daysAgo(10)},
	}}
	got := s.Continuable()
	if len(got) != 2 || got[0].Slug != "b" || got[1].Slug != "c" {
		t.Errorf("Continuable() = %+v", got)
	}
}
