// Package continuity owns the accumulated story facts of each Work and
// checks new Units against them.
package continuity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/datatypes"
)

// Profile is a character in the arena. It is referenced by ID; Name is a
// display attribute.
type Profile struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Aliases       []string          `json:"aliases,omitempty"`
	Role          string            `json:"role"`
	Abilities     []string          `json:"abilities,omitempty"`
	Traits        []string          `json:"traits,omitempty"`
	Relationships map[string]string `json:"relationships,omitempty"` // character ID -> label
	Location      string            `json:"location,omitempty"`
	Emotion       string            `json:"emotion,omitempty"`
	PowerLevel    int               `json:"power_level"`
	Deceased      bool              `json:"deceased,omitempty"`
	Developments  int               `json:"developments"`
	IntroducedIn  int               `json:"introduced_in"`
	LastSeenIn    int               `json:"last_seen_in"`
}

// HasAbility reports whether the profile lists ability v.
func (p *Profile) HasAbility(v string) bool { return containsFold(p.Abilities, v) }

// HasTrait reports whether the profile lists trait v.
func (p *Profile) HasTrait(v string) bool { return containsFold(p.Traits, v) }

// Rule is a world rule.
type Rule struct {
	id           uint
	Key          string   `json:"key"`
	Category     string   `json:"category,omitempty"`
	Statement    string   `json:"statement"`
	Forbids      []string `json:"forbids,omitempty"`
	Amendable    bool     `json:"amendable"`
	IntroducedIn int      `json:"introduced_in"`
}

// Fact is an established amendment to a world rule.
type Fact struct {
	RuleKey    string `json:"rule_key"`
	Statement  string `json:"statement"`
	UnitNumber int    `json:"unit_number"`
}

// Thread is a subplot, foreshadowing, promise, or conflict.
type Thread struct {
	id           uint
	Key          string   `json:"key"`
	Kind         string   `json:"kind"`
	Description  string   `json:"description"`
	Participants []string `json:"participants,omitempty"` // character IDs
	OpenedIn     int      `json:"opened_in"`
	ResolvedIn   int      `json:"resolved_in,omitempty"` // 0 while open
}

// Open reports whether the thread is unresolved.
func (t *Thread) Open() bool { return t.ResolvedIn == 0 }

// Checkpoint is a significant event on the timeline.
type Checkpoint struct {
	UnitNumber   int      `json:"unit_number"`
	Event        string   `json:"event"`
	Participants []string `json:"participants,omitempty"` // character IDs
	Location     string   `json:"location,omitempty"`
	StoryDay     int      `json:"story_day,omitempty"`
	Significance int      `json:"significance"`
}

// State is the continuity aggregate of one Work. Apply mutates it in
// memory; the tracker persists the changes on commit.
type State struct {
	WorkSlug    string
	ArcStage    string
	Cliffhanger string
	LastEnding  string
	LastUnit    int
	StoryDay    int
	Facts       []Fact
	Checkpoints []Checkpoint

	chars     map[string]*Profile
	charOrder []string
	byName    map[string]string
	rules     map[string]*Rule
	ruleOrder []string
	threads   map[string]*Thread
	threadOrd []string

	newID func() string

	newChars     map[string]bool
	dirtyChars   map[string]bool
	dirtyRules   map[string]bool
	dirtyThreads map[string]bool
	savedFacts   int
	savedChecks  int
}

// NewState returns an empty state for a Work.
func NewState(slug string) *State {
	s := &State{WorkSlug: slug, newID: uuid.NewString}
	s.reset()
	return s
}

func (s *State) reset() {
	s.chars = map[string]*Profile{}
	s.byName = map[string]string{}
	s.rules = map[string]*Rule{}
	s.threads = map[string]*Thread{}
	s.markClean()
}

func (s *State) markClean() {
	s.newChars = map[string]bool{}
	s.dirtyChars = map[string]bool{}
	s.dirtyRules = map[string]bool{}
	s.dirtyThreads = map[string]bool{}
	s.savedFacts = len(s.Facts)
	s.savedChecks = len(s.Checkpoints)
}

// Seeded returns a new state holding a Work's initial characters, rules,
// and threads. Nothing is persisted until the tracker saves it.
func Seeded(slug string, seed draft.Seed) *State {
	s := NewState(slug)
	s.ArcStage = seed.ArcStage
	for _, c := range seed.Characters {
		s.introduce(c, 0)
	}
	for _, r := range seed.Rules {
		s.addRule(r, 0)
	}
	for _, t := range seed.Threads {
		s.openThread(t, 0)
	}
	return s
}

// Character looks a character up by ID.
func (s *State) Character(id string) *Profile { return s.chars[id] }

// Lookup resolves a name or alias to a character.
func (s *State) Lookup(name string) *Profile {
	if id, ok := s.byName[draft.NameKey(name)]; ok {
		return s.chars[id]
	}
	return nil
}

// Characters returns every character in introduction order.
func (s *State) Characters() []*Profile {
	out := make([]*Profile, 0, len(s.charOrder))
	for _, id := range s.charOrder {
		out = append(out, s.chars[id])
	}
	return out
}

// Rule returns a world rule by key.
func (s *State) Rule(key string) *Rule { return s.rules[key] }

// Rules returns every world rule in introduction order.
func (s *State) Rules() []*Rule {
	out := make([]*Rule, 0, len(s.ruleOrder))
	for _, k := range s.ruleOrder {
		out = append(out, s.rules[k])
	}
	return out
}

// Thread returns a plot thread by key.
func (s *State) Thread(key string) *Thread { return s.threads[key] }

// Threads returns every thread in opening order.
func (s *State) Threads() []*Thread {
	out := make([]*Thread, 0, len(s.threadOrd))
	for _, k := range s.threadOrd {
		out = append(out, s.threads[k])
	}
	return out
}

// AsOf returns the checkpoints recorded up to and including unit n.
func (s *State) AsOf(n int) []Checkpoint {
	var out []Checkpoint
	for _, c := range s.Checkpoints {
		if c.UnitNumber <= n {
			out = append(out, c)
		}
	}
	return out
}

// Names renders character IDs as display names.
func (s *State) Names(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if p := s.chars[id]; p != nil {
			out = append(out, p.Name)
		}
	}
	return out
}

func (s *State) index(p *Profile) {
	s.byName[draft.NameKey(p.Name)] = p.ID
	for _, a := range p.Aliases {
		s.byName[draft.NameKey(a)] = p.ID
	}
}

func (s *State) introduce(c draft.CharacterSeed, unit int) *Profile {
	if p := s.Lookup(c.Name); p != nil {
		return p
	}
	role := c.Role
	if role == "" {
		role = "supporting"
	}
	p := &Profile{
		ID:            s.newID(),
		Name:          strings.TrimSpace(c.Name),
		Aliases:       c.Aliases,
		Role:          role,
		Abilities:     dedupe(c.Abilities),
		Traits:        dedupe(c.Traits),
		Relationships: map[string]string{},
		Location:      c.Location,
		IntroducedIn:  unit,
		LastSeenIn:    unit,
	}
	s.chars[p.ID] = p
	s.charOrder = append(s.charOrder, p.ID)
	s.index(p)
	s.newChars[p.ID] = true
	s.dirtyChars[p.ID] = true
	return p
}

func (s *State) addRule(r draft.RuleSeed, unit int) {
	if _, ok := s.rules[r.Key]; ok {
		return
	}
	s.rules[r.Key] = &Rule{
		Key:          r.Key,
		Category:     r.Category,
		Statement:    r.Statement,
		Forbids:      r.Forbids,
		Amendable:    r.Amendable,
		IntroducedIn: unit,
	}
	s.ruleOrder = append(s.ruleOrder, r.Key)
	s.dirtyRules[r.Key] = true
}

func (s *State) openThread(t draft.ThreadSeed, unit int) {
	if _, ok := s.threads[t.Key]; ok {
		return
	}
	kind := t.Kind
	if kind == "" {
		kind = models.ThreadSubplot
	}
	s.threads[t.Key] = &Thread{
		Key:          t.Key,
		Kind:         kind,
		Description:  t.Description,
		Participants: s.resolveIDs(t.Participants),
		OpenedIn:     unit,
	}
	s.threadOrd = append(s.threadOrd, t.Key)
	s.dirtyThreads[t.Key] = true
}

func (s *State) resolveIDs(names []string) []string {
	var ids []string
	for _, n := range names {
		if p := s.Lookup(n); p != nil {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// loadModels rebuilds the aggregate from stored rows. A JSON column that
// does not decode fails the load.
func (s *State) loadModels(chars []models.Character, rules []models.WorldRule, facts []models.EstablishedFact,
	threads []models.PlotThread, checks []models.Checkpoint, story *models.StoryState) error {
	s.reset()
	var d decoder
	for _, c := range chars {
		d.at = "character " + c.ID
		p := &Profile{
			ID:            c.ID,
			Name:          c.Name,
			Aliases:       d.list("aliases", c.Aliases),
			Role:          c.Role,
			Abilities:     d.list("abilities", c.Abilities),
			Traits:        d.list("traits", c.Traits),
			Relationships: d.mapping("relationships", c.Relationships),
			Location:      c.Location,
			Emotion:       c.Emotion,
			PowerLevel:    c.PowerLevel,
			Deceased:      c.Deceased,
			Developments:  c.Developments,
			IntroducedIn:  c.IntroducedIn,
			LastSeenIn:    c.LastSeenIn,
		}
		s.chars[p.ID] = p
		s.charOrder = append(s.charOrder, p.ID)
		s.index(p)
	}
	for _, r := range rules {
		d.at = "rule " + r.Key
		s.rules[r.Key] = &Rule{
			id:           r.ID,
			Key:          r.Key,
			Category:     r.Category,
			Statement:    r.Statement,
			Forbids:      d.list("forbids", r.Forbids),
			Amendable:    r.Amendable,
			IntroducedIn: r.IntroducedIn,
		}
		s.ruleOrder = append(s.ruleOrder, r.Key)
	}
	s.Facts = s.Facts[:0]
	for _, f := range facts {
		s.Facts = append(s.Facts, Fact{RuleKey: f.RuleKey, Statement: f.Statement, UnitNumber: f.UnitNumber})
	}
	for _, t := range threads {
		d.at = "thread " + t.Key
		th := &Thread{
			id:           t.ID,
			Key:          t.Key,
			Kind:         t.Kind,
			Description:  t.Description,
			Participants: d.list("participants", t.Participants),
			OpenedIn:     t.OpenedIn,
		}
		if t.ResolvedIn != nil {
			th.ResolvedIn = *t.ResolvedIn
		}
		s.threads[t.Key] = th
		s.threadOrd = append(s.threadOrd, t.Key)
	}
	s.Checkpoints = s.Checkpoints[:0]
	for _, c := range checks {
		d.at = fmt.Sprintf("checkpoint %d", c.ID)
		s.Checkpoints = append(s.Checkpoints, Checkpoint{
			UnitNumber:   c.UnitNumber,
			Event:        c.Event,
			Participants: d.list("participants", c.Participants),
			Location:     c.Location,
			StoryDay:     c.StoryDay,
			Significance: c.Significance,
		})
	}
	if story != nil {
		s.ArcStage = story.ArcStage
		s.Cliffhanger = story.Cliffhanger
		s.LastEnding = story.LastEnding
		s.LastUnit = story.LastUnit
		s.StoryDay = story.StoryDay
	}
	if d.err != nil {
		return d.err
	}
	s.markClean()
	return nil
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func dedupe(list []string) []string {
	var out []string
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" && !containsFold(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func removeFold(list []string, v string) []string {
	var out []string
	for _, x := range list {
		if !strings.EqualFold(x, v) {
			out = append(out, x)
		}
	}
	return out
}

// decoder decodes JSON columns and keeps the first failure.
type decoder struct {
	at  string
	err error
}

func (d *decoder) list(field string, j datatypes.JSON) []string {
	var out []string
	if len(j) > 0 {
		d.decode(field, j, &out)
	}
	return out
}

func (d *decoder) mapping(field string, j datatypes.JSON) map[string]string {
	out := map[string]string{}
	if len(j) > 0 {
		d.decode(field, j, &out)
	}
	return out
}

func (d *decoder) decode(field string, j datatypes.JSON, v interface{}) {
	if err := json.Unmarshal(j, v); err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: decode %s: %w", d.at, field, err)
	}
}

func encode(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(data)
}

func encodeList(list []string) datatypes.JSON {
	if list == nil {
		list = []string{}
	}
	return encode(list)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
