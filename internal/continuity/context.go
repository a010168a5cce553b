package continuity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/prose"
	"github.com/zulandar/quill/internal/repository"
)

// Tier orders context sections by how much the generator needs them.
type Tier string

const (
	TierEssential Tier = "essential"
	TierImmediate Tier = "immediate"
	TierRecent    Tier = "recent"
	TierOptional  Tier = "optional"
)

// Compression trades detail for size.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionModerate
	CompressionAggressive
)

// ParseCompression maps a config value to a Compression level.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "moderate":
		return CompressionModerate, nil
	case "aggressive":
		return CompressionAggressive, nil
	}
	return CompressionNone, fmt.Errorf("continuity: unknown compression level %q", s)
}

func (c Compression) String() string {
	switch c {
	case CompressionModerate:
		return "moderate"
	case CompressionAggressive:
		return "aggressive"
	default:
		return "none"
	}
}

// Section is one heading of the context packet.
type Section struct {
	Tier    Tier     `json:"tier"`
	Heading string   `json:"heading"`
	Lines   []string `json:"lines"`
}

// GenerationContext is the tiered fact packet handed to the generator.
type GenerationContext struct {
	WorkSlug    string      `json:"work_slug"`
	Title       string      `json:"title"`
	NextNumber  int         `json:"next_number"`
	Compression Compression `json:"compression"`
	Budget      int         `json:"budget"`
	Sections    []Section   `json:"sections"`
	Dropped     []Tier      `json:"dropped,omitempty"`
}

// EstimateTokens approximates the token cost of text at four characters
// per token.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Tokens estimates the size of the rendered packet.
func (g *GenerationContext) Tokens() int {
	return EstimateTokens(g.Render())
}

// Has reports whether any section of tier t survived.
func (g *GenerationContext) Has(t Tier) bool {
	for _, s := range g.Sections {
		if s.Tier == t {
			return true
		}
	}
	return false
}

// drop removes every section of tier t.
func (g *GenerationContext) drop(t Tier) {
	kept := g.Sections[:0]
	for _, s := range g.Sections {
		if s.Tier != t {
			kept = append(kept, s)
		}
	}
	g.Sections = kept
	g.Dropped = append(g.Dropped, t)
}

// fit drops optional, then recent sections until the packet is within
// budget. Essential and immediate sections are never dropped.
func (g *GenerationContext) fit() {
	if g.Budget <= 0 {
		return
	}
	for _, t := range []Tier{TierOptional, TierRecent} {
		if g.Tokens() <= g.Budget {
			return
		}
		if g.Has(t) {
			g.drop(t)
		}
	}
}

// Render produces the markdown packet.
func (g *GenerationContext) Render() string {
	var w strings.Builder
	fmt.Fprintf(&w, "# %s\n", g.Title)
	fmt.Fprintf(&w, "# Work: %s | Next unit: %d\n\n", g.WorkSlug, g.NextNumber)
	for _, s := range g.Sections {
		writeSection(&w, s)
	}
	return w.String()
}

func writeSection(w *strings.Builder, s Section) {
	if len(s.Lines) == 0 {
		return
	}
	fmt.Fprintf(w, "## %s\n", s.Heading)
	for _, l := range s.Lines {
		w.WriteString("- ")
		w.WriteString(l)
		w.WriteString("\n")
	}
	w.WriteString("\n")
}

// contextInput is everything BuildContext renders from.
type contextInput struct {
	work     *models.Work
	state    *State
	recent   []models.Unit
	next     int
	level    Compression
	budget   int
	window   int
	excerpts int
}

func buildContext(in contextInput) *GenerationContext {
	g := &GenerationContext{
		WorkSlug:    in.work.Slug,
		Title:       in.work.Title,
		NextNumber:  in.next,
		Compression: in.level,
		Budget:      in.budget,
	}
	s := in.state

	window, excerpts := in.window, in.excerpts
	switch in.level {
	case CompressionModerate:
		window = (window + 1) / 2
		excerpts = excerpts / 2
	case CompressionAggressive:
		window = 1
		excerpts = 0
	}
	if len(in.recent) > window {
		in.recent = in.recent[len(in.recent)-window:]
	}

	g.Sections = append(g.Sections, essentialSections(in.work, s)...)
	g.Sections = append(g.Sections, immediateSections(s)...)
	g.Sections = append(g.Sections, recentSections(s, in.recent, excerpts)...)
	if in.level == CompressionAggressive {
		g.Dropped = append(g.Dropped, TierOptional)
	} else {
		g.Sections = append(g.Sections, optionalSections(s, in.recent)...)
	}
	g.fit()
	return g
}

func essentialSections(w *models.Work, s *State) []Section {
	overview := []string{fmt.Sprintf("Title: %s", w.Title)}
	if w.Summary != "" {
		overview = append(overview, "Premise: "+w.Summary)
	}
	if tags := repository.Tags(*w); len(tags) > 0 {
		overview = append(overview, "Tags: "+strings.Join(tags, ", "))
	}
	if w.PlannedUnits > 0 {
		overview = append(overview, fmt.Sprintf("Planned length: %d units", w.PlannedUnits))
	}
	if s.ArcStage != "" {
		overview = append(overview, "Arc stage: "+s.ArcStage)
	}

	var cast []string
	for _, p := range s.Characters() {
		if p.Role != "main" {
			continue
		}
		line := fmt.Sprintf("%s (%s)", p.Name, p.Role)
		if len(p.Abilities) > 0 {
			line += "; abilities: " + strings.Join(p.Abilities, ", ")
		}
		if len(p.Traits) > 0 {
			line += "; traits: " + strings.Join(p.Traits, ", ")
		}
		if p.Deceased {
			line += "; deceased"
		}
		cast = append(cast, line)
	}

	var rules []string
	for _, r := range s.Rules() {
		if !r.Amendable {
			rules = append(rules, fmt.Sprintf("[%s] %s", r.Key, r.Statement))
		}
	}

	return []Section{
		{Tier: TierEssential, Heading: "Work", Lines: overview},
		{Tier: TierEssential, Heading: "Main Characters", Lines: cast},
		{Tier: TierEssential, Heading: "World Rules", Lines: rules},
	}
}

func immediateSections(s *State) []Section {
	var prev []string
	if s.LastEnding != "" {
		prev = append(prev, "Previous unit ended: "+s.LastEnding)
	}
	if s.Cliffhanger != "" {
		prev = append(prev, "Unresolved cliffhanger: "+s.Cliffhanger)
	}
	if s.StoryDay > 0 {
		prev = append(prev, fmt.Sprintf("Story day: %d", s.StoryDay))
	}

	var conflicts []string
	for _, t := range s.Threads() {
		if t.Kind == models.ThreadConflict && t.Open() {
			conflicts = append(conflicts, fmt.Sprintf("%s: %s", t.Key, t.Description))
		}
	}

	var states []string
	for _, p := range s.Characters() {
		if p.Role == "minor" || p.Deceased {
			continue
		}
		var parts []string
		if p.Location != "" {
			parts = append(parts, "at "+p.Location)
		}
		if p.Emotion != "" {
			parts = append(parts, "feeling "+p.Emotion)
		}
		if p.PowerLevel != 0 {
			parts = append(parts, fmt.Sprintf("power %d", p.PowerLevel))
		}
		if len(parts) > 0 {
			states = append(states, p.Name+": "+strings.Join(parts, ", "))
		}
	}

	return []Section{
		{Tier: TierImmediate, Heading: "Where We Left Off", Lines: prev},
		{Tier: TierImmediate, Heading: "Active Conflicts", Lines: conflicts},
		{Tier: TierImmediate, Heading: "Character States", Lines: states},
	}
}

func recentSections(s *State, recent []models.Unit, excerpts int) []Section {
	var summaries []string
	from := 0
	for _, u := range recent {
		sum := u.Summary
		if sum == "" {
			sum = firstSentences(u.Body, 2)
		}
		summaries = append(summaries, fmt.Sprintf("Unit %d, %s: %s", u.Number, u.Title, sum))
		if from == 0 || u.Number < from {
			from = u.Number
		}
	}

	var plot []string
	for _, c := range s.Checkpoints {
		if from > 0 && c.UnitNumber >= from && c.Significance >= 3 {
			plot = append(plot, fmt.Sprintf("Unit %d: %s", c.UnitNumber, c.Event))
		}
	}
	for _, t := range s.Threads() {
		if t.Open() && (t.Kind == models.ThreadForeshadowing || t.Kind == models.ThreadPromise) {
			plot = append(plot, fmt.Sprintf("Open %s %s: %s", t.Kind, t.Key, t.Description))
		}
	}

	var dialogue []string
	if excerpts > 0 && len(recent) > 0 {
		lines := prose.LinesOf(prose.PlainText(recent[len(recent)-1].Body), prose.Dialogue)
		if len(lines) > excerpts {
			lines = lines[len(lines)-excerpts:]
		}
		dialogue = lines
	}

	return []Section{
		{Tier: TierRecent, Heading: "Recent Units", Lines: summaries},
		{Tier: TierRecent, Heading: "Key Plot Points", Lines: plot},
		{Tier: TierRecent, Heading: "Recent Dialogue", Lines: dialogue},
	}
}

func optionalSections(s *State, recent []models.Unit) []Section {
	var minor []string
	for _, p := range s.Characters() {
		if p.Role == "minor" {
			minor = append(minor, fmt.Sprintf("%s (last seen in unit %d)", p.Name, p.LastSeenIn))
		}
	}
	from := 0
	if len(recent) > 0 {
		from = recent[0].Number
	}
	var history []string
	for _, c := range s.Checkpoints {
		if (from == 0 || c.UnitNumber < from) && c.Significance >= 2 {
			history = append(history, fmt.Sprintf("Unit %d: %s", c.UnitNumber, c.Event))
		}
	}
	for _, t := range s.Threads() {
		if !t.Open() {
			history = append(history, fmt.Sprintf("Resolved %s %s in unit %d", t.Kind, t.Key, t.ResolvedIn))
		}
	}
	var amendable []string
	for _, r := range s.Rules() {
		if r.Amendable {
			amendable = append(amendable, fmt.Sprintf("[%s] %s", r.Key, r.Statement))
		}
	}
	return []Section{
		{Tier: TierOptional, Heading: "Minor Characters", Lines: minor},
		{Tier: TierOptional, Heading: "History", Lines: history},
		{Tier: TierOptional, Heading: "Amendable Facts", Lines: amendable},
	}
}

func firstSentences(body string, n int) string {
	ss := prose.Sentences(prose.PlainText(body))
	if len(ss) > n {
		ss = ss[:n]
	}
	return strings.Join(ss, " ")
}
