package continuity

import (
	"fmt"
	"strings"

	"github.com/zulandar/quill/internal/draft"
)

// Apply folds an accepted candidate into the state. It is only called
// after the candidate passed validation.
func (s *State) Apply(c draft.Candidate) {
	f := c.Facts
	n := c.Number

	for _, seed := range f.Introductions {
		s.introduce(seed, n)
	}
	for _, name := range referencedNames(f) {
		if p := s.Lookup(name); p != nil && p.LastSeenIn < n {
			p.LastSeenIn = n
			s.dirtyChars[p.ID] = true
		}
	}

	for _, ch := range f.Changes {
		p := s.Lookup(ch.Character)
		if p == nil {
			continue
		}
		switch strings.ToLower(ch.Attribute) {
		case "ability":
			if ch.Removed {
				p.Abilities = removeFold(p.Abilities, ch.Value)
			} else if !p.HasAbility(ch.Value) {
				p.Abilities = append(p.Abilities, ch.Value)
			}
		case "trait":
			if ch.Removed {
				p.Traits = removeFold(p.Traits, ch.Value)
			} else if !p.HasTrait(ch.Value) {
				p.Traits = append(p.Traits, ch.Value)
			}
		}
		p.Developments++
		s.dirtyChars[p.ID] = true
	}

	for _, u := range f.StateUpdates {
		p := s.Lookup(u.Character)
		if p == nil {
			continue
		}
		if u.Location != "" {
			p.Location = u.Location
		}
		if u.Emotion != "" {
			p.Emotion = u.Emotion
		}
		if u.PowerLevel != nil && *u.PowerLevel != p.PowerLevel {
			p.PowerLevel = *u.PowerLevel
			p.Developments++
		}
		if u.Deceased && !p.Deceased {
			p.Deceased = true
			p.Developments++
		}
		if u.Rename != "" && draft.NameKey(u.Rename) != draft.NameKey(p.Name) {
			p.Aliases = append(p.Aliases, p.Name)
			p.Name = strings.TrimSpace(u.Rename)
			s.index(p)
			p.Developments++
		}
		s.dirtyChars[p.ID] = true
	}

	for _, r := range f.Relationships {
		from, to := s.Lookup(r.From), s.Lookup(r.To)
		if from == nil || to == nil || from.ID == to.ID {
			continue
		}
		if from.Relationships == nil {
			from.Relationships = map[string]string{}
		}
		if from.Relationships[to.ID] != r.Label {
			from.Relationships[to.ID] = r.Label
			s.dirtyChars[from.ID] = true
		}
	}

	for _, sg := range f.Timeline {
		p := s.Lookup(sg.Character)
		if p == nil || sg.Location == "" {
			continue
		}
		day := sg.Day
		if day == 0 {
			day = f.StoryDay
		}
		if !f.Flashback {
			p.Location = sg.Location
			s.dirtyChars[p.ID] = true
		}
		s.Checkpoints = append(s.Checkpoints, Checkpoint{
			UnitNumber:   n,
			Event:        fmt.Sprintf("%s at %s", p.Name, sg.Location),
			Participants: []string{p.ID},
			Location:     sg.Location,
			StoryDay:     day,
			Significance: 1,
		})
	}

	for _, r := range f.NewRules {
		s.addRule(r, n)
	}
	for _, a := range f.Amendments {
		r := s.rules[a.Key]
		if r == nil || !r.Amendable {
			continue
		}
		r.Statement = a.Statement
		s.dirtyRules[a.Key] = true
		s.Facts = append(s.Facts, Fact{RuleKey: a.Key, Statement: a.Statement, UnitNumber: n})
	}

	for _, t := range f.Planted {
		s.openThread(t, n)
	}
	for _, key := range f.Resolved {
		if t := s.threads[key]; t != nil && t.Open() {
			t.ResolvedIn = n
			s.dirtyThreads[key] = true
		}
	}

	for _, e := range f.Events {
		sig := e.Significance
		if sig < 1 {
			sig = 1
		}
		if sig > 5 {
			sig = 5
		}
		s.Checkpoints = append(s.Checkpoints, Checkpoint{
			UnitNumber:   n,
			Event:        e.Description,
			Participants: s.resolveIDs(e.Participants),
			Location:     e.Location,
			StoryDay:     f.StoryDay,
			Significance: sig,
		})
	}

	if f.ArcStage != "" {
		s.ArcStage = f.ArcStage
	}
	s.Cliffhanger = f.Cliffhanger
	if f.Ending != "" {
		s.LastEnding = f.Ending
	} else if c.Summary != "" {
		s.LastEnding = c.Summary
	}
	if n > s.LastUnit {
		s.LastUnit = n
	}
	if !f.Flashback && f.StoryDay > s.StoryDay {
		s.StoryDay = f.StoryDay
	}
}
