// Package draft holds the values exchanged between the generator, the
// continuity tracker, and the validation gate before anything is
// persisted.
package draft

import "strings"

// Candidate is a proposed Unit awaiting validation.
type Candidate struct {
	WorkSlug string  `json:"work_slug"`
	Number   int     `json:"number"`
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	Summary  string  `json:"summary,omitempty"`
	Kind     string  `json:"kind,omitempty"` // regular, closing, epilogue
	Facts    Facts   `json:"facts"`
	Scores   *Scores `json:"scores,omitempty"`
}

// Scores are quality sub-scores on a 0-10 scale.
type Scores struct {
	Plot      float64 `json:"plot"`
	Character float64 `json:"character"`
	Style     float64 `json:"style"`
	Tone      float64 `json:"tone"`
}

// Facts are the story claims a candidate makes. The generator reports
// them alongside the text.
type Facts struct {
	Mentions      []string        `json:"mentions,omitempty"`
	Introductions []CharacterSeed `json:"introductions,omitempty"`
	AbilityClaims []Claim         `json:"ability_claims,omitempty"`
	TraitClaims   []Claim         `json:"trait_claims,omitempty"`
	Changes       []Change        `json:"changes,omitempty"`
	StateUpdates  []StateUpdate   `json:"state_updates,omitempty"`
	Relationships []Relationship  `json:"relationships,omitempty"`
	Timeline      []Sighting      `json:"timeline,omitempty"`
	RuleClaims    []RuleClaim     `json:"rule_claims,omitempty"`
	Amendments    []RuleClaim     `json:"amendments,omitempty"`
	NewRules      []RuleSeed      `json:"new_rules,omitempty"`
	Planted       []ThreadSeed    `json:"planted,omitempty"`
	Resolved      []string        `json:"resolved,omitempty"`
	Events        []Event         `json:"events,omitempty"`
	ArcStage      string          `json:"arc_stage,omitempty"`
	Cliffhanger   string          `json:"cliffhanger,omitempty"`
	Ending        string          `json:"ending,omitempty"`
	StoryDay      int             `json:"story_day,omitempty"`
	Flashback     bool            `json:"flashback,omitempty"`
}

// CharacterSeed introduces a character.
type CharacterSeed struct {
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	Role      string   `json:"role,omitempty"`
	Abilities []string `json:"abilities,omitempty"`
	Traits    []string `json:"traits,omitempty"`
	Location  string   `json:"location,omitempty"`
}

// Claim attributes an ability or trait to a character by name.
type Claim struct {
	Character string `json:"character"`
	Value     string `json:"value"`
}

// Change is an explicit, causally justified change to a character.
// Attribute is "ability" or "trait"; Removed drops the value instead of
// adding it.
type Change struct {
	Character string `json:"character"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
	Removed   bool   `json:"removed,omitempty"`
	Cause     string `json:"cause"`
}

// StateUpdate moves a character's current state.
type StateUpdate struct {
	Character  string `json:"character"`
	Location   string `json:"location,omitempty"`
	Emotion    string `json:"emotion,omitempty"`
	PowerLevel *int   `json:"power_level,omitempty"`
	Deceased   bool   `json:"deceased,omitempty"`
	Rename     string `json:"rename,omitempty"`
}

// Relationship labels the link between two characters.
type Relationship struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// Sighting places a character somewhere on a story day.
type Sighting struct {
	Character string `json:"character"`
	Location  string `json:"location"`
	Day       int    `json:"day"`
}

// RuleClaim asserts the content of a world rule by key.
type RuleClaim struct {
	Key       string `json:"key"`
	Statement string `json:"statement"`
}

// RuleSeed introduces a world rule.
type RuleSeed struct {
	Key       string   `json:"key"`
	Category  string   `json:"category,omitempty"`
	Statement string   `json:"statement"`
	Forbids   []string `json:"forbids,omitempty"`
	Amendable bool     `json:"amendable,omitempty"`
}

// ThreadSeed opens a plot thread.
type ThreadSeed struct {
	Key          string   `json:"key"`
	Kind         string   `json:"kind"` // subplot, foreshadowing, promise, conflict
	Description  string   `json:"description"`
	Participants []string `json:"participants,omitempty"`
}

// Event is a significant happening, recorded as a checkpoint.
type Event struct {
	Description  string   `json:"description"`
	Participants []string `json:"participants,omitempty"`
	Location     string   `json:"location,omitempty"`
	Significance int      `json:"significance,omitempty"`
}

// WorkDraft is a proposed new Work.
type WorkDraft struct {
	Slug         string   `json:"slug"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	PlannedUnits int      `json:"planned_units"`
	Tags         []string `json:"tags,omitempty"`
	MinWords     int      `json:"min_words,omitempty"`
	MaxWords     int      `json:"max_words,omitempty"`
}

// Seed is the initial continuity state of a new Work.
type Seed struct {
	Characters []CharacterSeed `json:"characters,omitempty"`
	Rules      []RuleSeed      `json:"rules,omitempty"`
	Threads    []ThreadSeed    `json:"threads,omitempty"`
	ArcStage   string          `json:"arc_stage,omitempty"`
}

// NameKey normalizes a character name for lookup.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
