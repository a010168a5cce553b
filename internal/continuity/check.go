package continuity

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/prose"
	"github.com/zulandar/quill/internal/verdict"
)

// Reason codes reported by Check.
const (
	CodeUnknownCharacter = "UnknownCharacter"
	CodeAbility          = "AbilityContradiction"
	CodeTrait            = "TraitContradiction"
	CodeUncausedChange   = "UncausedChange"
	CodeTimeline         = "TimelineContradiction"
	CodeLocation         = "LocationContradiction"
	CodeWorldRule        = "WorldRuleViolation"
)

// ValidateAgainstHistory checks c against the in-memory state, letting a
// State stand in for the tracker when validating a batch.
func (s *State) ValidateAgainstHistory(_ context.Context, c draft.Candidate) verdict.Result {
	return s.Check(c)
}

// Check runs every continuity check and accumulates all failures.
func (s *State) Check(c draft.Candidate) verdict.Result {
	res := verdict.Pass()
	in := newIntroductions(c.Facts.Introductions)
	for _, r := range s.checkCharacters(c, in) {
		res.Add(r)
	}
	for _, r := range s.checkAttributes(c, in) {
		res.Add(r)
	}
	for _, r := range s.checkTimeline(c) {
		res.Add(r)
	}
	for _, r := range s.checkWorld(c) {
		res.Add(r)
	}
	return res
}

func violation(code, fact, format string, args ...interface{}) verdict.Reason {
	return verdict.Reason{
		Check:   verdict.CheckContinuity,
		Kind:    errs.KindContinuity,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Fact:    fact,
	}
}

// introductions indexes the characters a candidate introduces.
type introductions map[string]draft.CharacterSeed

func newIntroductions(seeds []draft.CharacterSeed) introductions {
	in := introductions{}
	for _, c := range seeds {
		in[draft.NameKey(c.Name)] = c
		for _, a := range c.Aliases {
			in[draft.NameKey(a)] = c
		}
	}
	return in
}

func (in introductions) get(name string) (draft.CharacterSeed, bool) {
	c, ok := in[draft.NameKey(name)]
	return c, ok
}

// referencedNames lists every character name a candidate refers to, in
// first-seen order.
func referencedNames(f draft.Facts) []string {
	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		k := draft.NameKey(n)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		names = append(names, n)
	}
	for _, n := range f.Mentions {
		add(n)
	}
	for _, c := range f.AbilityClaims {
		add(c.Character)
	}
	for _, c := range f.TraitClaims {
		add(c.Character)
	}
	for _, c := range f.Changes {
		add(c.Character)
	}
	for _, u := range f.StateUpdates {
		add(u.Character)
	}
	for _, r := range f.Relationships {
		add(r.From)
		add(r.To)
	}
	for _, t := range f.Timeline {
		add(t.Character)
	}
	for _, e := range f.Events {
		for _, p := range e.Participants {
			add(p)
		}
	}
	for _, t := range f.Planted {
		for _, p := range t.Participants {
			add(p)
		}
	}
	return names
}

// checkCharacters flags characters that are neither registered nor
// introduced by the candidate.
func (s *State) checkCharacters(c draft.Candidate, in introductions) []verdict.Reason {
	var out []verdict.Reason
	for _, name := range referencedNames(c.Facts) {
		if s.Lookup(name) != nil {
			continue
		}
		if _, ok := in.get(name); ok {
			continue
		}
		out = append(out, violation(CodeUnknownCharacter, "character:"+name,
			"character %q is not registered and not introduced in unit %d", name, c.Number))
	}
	return out
}

// justified reports whether the candidate carries a change record with a
// cause that grants value to the character.
func justified(changes []draft.Change, who *Profile, attribute, value string, s *State) bool {
	for _, ch := range changes {
		if ch.Removed || !strings.EqualFold(ch.Attribute, attribute) || !strings.EqualFold(ch.Value, value) {
			continue
		}
		if strings.TrimSpace(ch.Cause) == "" {
			continue
		}
		if p := s.Lookup(ch.Character); p != nil && p.ID == who.ID {
			return true
		}
	}
	return false
}

// checkAttributes flags abilities and traits that contradict a registered
// profile without a causal change record, and change records without a
// cause.
func (s *State) checkAttributes(c draft.Candidate, in introductions) []verdict.Reason {
	var out []verdict.Reason
	f := c.Facts

	for _, ch := range f.Changes {
		if strings.TrimSpace(ch.Cause) != "" {
			continue
		}
		if p := s.Lookup(ch.Character); p != nil {
			out = append(out, violation(CodeUncausedChange,
				fmt.Sprintf("change:%s:%s:%s", p.ID, ch.Attribute, ch.Value),
				"change to %s's %s %q has no cause", p.Name, ch.Attribute, ch.Value))
		}
	}

	check := func(claims []draft.Claim, attribute, code string, has func(*Profile, string) bool, seedHas func(draft.CharacterSeed, string) bool) {
		for _, cl := range claims {
			p := s.Lookup(cl.Character)
			if p == nil {
				if seed, ok := in.get(cl.Character); ok && !seedHas(seed, cl.Value) {
					out = append(out, violation(code,
						fmt.Sprintf("%s:%s:%s", attribute, draft.NameKey(cl.Character), cl.Value),
						"%s is introduced without %s %q but shown with it", cl.Character, attribute, cl.Value))
				}
				continue
			}
			if has(p, cl.Value) || justified(f.Changes, p, attribute, cl.Value, s) {
				continue
			}
			out = append(out, violation(code,
				fmt.Sprintf("%s:%s:%s", attribute, p.ID, cl.Value),
				"%s has no registered %s %q and no change record explains it", p.Name, attribute, cl.Value))
		}
	}
	check(f.AbilityClaims, "ability", CodeAbility,
		(*Profile).HasAbility,
		func(cs draft.CharacterSeed, v string) bool { return containsFold(cs.Abilities, v) })
	check(f.TraitClaims, "trait", CodeTrait,
		(*Profile).HasTrait,
		func(cs draft.CharacterSeed, v string) bool { return containsFold(cs.Traits, v) })
	return out
}

// checkTimeline flags story days that run backwards, sightings of dead
// characters, and characters placed in two locations on the same day.
func (s *State) checkTimeline(c draft.Candidate) []verdict.Reason {
	var out []verdict.Reason
	f := c.Facts
	if f.Flashback {
		return nil
	}
	if f.StoryDay > 0 && f.StoryDay < s.StoryDay {
		out = append(out, violation(CodeTimeline, fmt.Sprintf("day:%d", s.StoryDay),
			"unit %d is set on day %d, before the established day %d", c.Number, f.StoryDay, s.StoryDay))
	}

	type place struct {
		loc  string
		unit int
	}
	placed := map[string]place{}
	for _, cp := range s.Checkpoints {
		if cp.StoryDay == 0 || cp.Location == "" {
			continue
		}
		for _, id := range cp.Participants {
			placed[fmt.Sprintf("%s@%d", id, cp.StoryDay)] = place{cp.Location, cp.UnitNumber}
		}
	}

	for _, sg := range f.Timeline {
		p := s.Lookup(sg.Character)
		if p == nil {
			continue
		}
		if p.Deceased {
			out = append(out, violation(CodeTimeline, "deceased:"+p.ID,
				"%s is dead but appears at %s", p.Name, sg.Location))
			continue
		}
		day := sg.Day
		if day == 0 {
			day = f.StoryDay
		}
		if day == 0 || sg.Location == "" {
			continue
		}
		key := fmt.Sprintf("%s@%d", p.ID, day)
		if prev, ok := placed[key]; ok && !sameLocation(prev.loc, sg.Location) {
			src := "earlier in this unit"
			if prev.unit > 0 {
				src = fmt.Sprintf("in unit %d", prev.unit)
			}
			out = append(out, violation(CodeLocation, fmt.Sprintf("location:%s:%d:%s", p.ID, day, prev.loc),
				"%s is at %s on day %d but was placed at %s %s", p.Name, sg.Location, day, prev.loc, src))
			continue
		}
		placed[key] = place{sg.Location, 0}
	}
	return out
}

func sameLocation(a, b string) bool {
	return prose.Normalize(a) == prose.Normalize(b)
}

// checkWorld flags contradictions of established world rules.
func (s *State) checkWorld(c draft.Candidate) []verdict.Reason {
	var out []verdict.Reason
	f := c.Facts
	amended := map[string]bool{}
	for _, a := range f.Amendments {
		r := s.rules[a.Key]
		switch {
		case r == nil:
			out = append(out, violation(CodeWorldRule, "rule:"+a.Key, "amendment to unknown rule %q", a.Key))
		case !r.Amendable:
			out = append(out, violation(CodeWorldRule, "rule:"+a.Key, "rule %q is immutable: %s", a.Key, r.Statement))
		default:
			amended[a.Key] = true
		}
	}

	for _, cl := range f.RuleClaims {
		r := s.rules[cl.Key]
		if r == nil || amended[cl.Key] {
			continue
		}
		if prose.Normalize(cl.Statement) != prose.Normalize(r.Statement) {
			out = append(out, violation(CodeWorldRule, "rule:"+r.Key,
				"claim %q contradicts rule %q: %s", cl.Statement, r.Key, r.Statement))
		}
	}

	for _, nr := range f.NewRules {
		if r := s.rules[nr.Key]; r != nil && prose.Normalize(r.Statement) != prose.Normalize(nr.Statement) {
			out = append(out, violation(CodeWorldRule, "rule:"+r.Key,
				"rule %q is already established as: %s", r.Key, r.Statement))
		}
	}

	body := " " + prose.Normalize(prose.PlainText(c.Body)) + " "
	for _, key := range s.ruleOrder {
		r := s.rules[key]
		if amended[key] {
			continue
		}
		for _, phrase := range r.Forbids {
			p := prose.Normalize(phrase)
			if p != "" && strings.Contains(body, " "+p+" ") {
				out = append(out, violation(CodeWorldRule, "rule:"+r.Key,
					"text contains %q, which rule %q forbids", phrase, r.Key))
			}
		}
	}
	return out
}
