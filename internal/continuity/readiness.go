package continuity

import (
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/policy"
)

var arcScores = map[string]float64{
	"setup":          10,
	"rising-action":  40,
	"climax":         70,
	"falling-action": 85,
	"resolution":     100,
	"denouement":     100,
}

// Readiness derives completion sub-scores from the story state.
func (s *State) Readiness(units, planned, rulesTarget int) policy.ReadinessScores {
	return policy.ReadinessScores{
		Plot:         s.plotReadiness(units, planned),
		Character:    s.characterReadiness(),
		Relationship: s.relationshipReadiness(),
		World:        s.worldReadiness(rulesTarget),
	}
}

// plotReadiness is the share of resolved subplots, foreshadowing, and
// conflicts; without threads it falls back to the arc stage.
func (s *State) plotReadiness(units, planned int) float64 {
	total, resolved := 0, 0
	for _, t := range s.Threads() {
		if t.Kind == models.ThreadPromise {
			continue
		}
		total++
		if !t.Open() {
			resolved++
		}
	}
	if total > 0 {
		return 100 * float64(resolved) / float64(total)
	}
	if v, ok := arcScores[s.ArcStage]; ok {
		return v
	}
	if planned > 0 {
		return min(100, 100*float64(units)/float64(planned))
	}
	return 0
}

func (s *State) principals() []*Profile {
	var main, named []*Profile
	for _, p := range s.Characters() {
		switch p.Role {
		case "main":
			main = append(main, p)
		case "minor":
		default:
			named = append(named, p)
		}
	}
	if len(main) > 0 {
		return main
	}
	return named
}

// characterReadiness is the share of principal characters that have
// developed at least once.
func (s *State) characterReadiness() float64 {
	ps := s.principals()
	if len(ps) == 0 {
		return 0
	}
	developed := 0
	for _, p := range ps {
		if p.Developments > 0 {
			developed++
		}
	}
	return 100 * float64(developed) / float64(len(ps))
}

// relationshipReadiness blends fulfilled promises with how many principal
// characters have at least one relationship.
func (s *State) relationshipReadiness() float64 {
	ps := s.principals()
	coverage := 0.0
	if len(ps) > 0 {
		linked := 0
		for _, p := range ps {
			if len(p.Relationships) > 0 {
				linked++
			}
		}
		coverage = 100 * float64(linked) / float64(len(ps))
	}

	promises, kept := 0, 0
	for _, t := range s.Threads() {
		if t.Kind == models.ThreadPromise {
			promises++
			if !t.Open() {
				kept++
			}
		}
	}
	if promises == 0 {
		return coverage
	}
	return 0.5*coverage + 0.5*100*float64(kept)/float64(promises)
}

// worldReadiness measures established rules and amendments against a
// target count.
func (s *State) worldReadiness(target int) float64 {
	if target <= 0 {
		target = 1
	}
	n := len(s.ruleOrder) + len(s.Facts)
	return min(100, 100*float64(n)/float64(target))
}
