package prose

import (
	"regexp"
	"strings"
)

// LineKind tags a line of narrative text.
type LineKind int

const (
	Narrative LineKind = iota
	Dialogue
	Monologue
	Action
)

func (k LineKind) String() string {
	switch k {
	case Dialogue:
		return "dialogue"
	case Monologue:
		return "monologue"
	case Action:
		return "action"
	default:
		return "narrative"
	}
}

var (
	thoughtRe = regexp.MustCompile(`(?i)\b(i|he|she|they|we)\s+(thought|wondered|mused|reminded (myself|himself|herself|themselves))\b`)

	actionVerbs = map[string]bool{
		"ran": true, "struck": true, "grabbed": true, "lunged": true, "dodged": true,
		"slammed": true, "leapt": true, "leaped": true, "drew": true, "fired": true,
		"kicked": true, "punched": true, "threw": true, "jumped": true, "charged": true,
		"swung": true, "sprinted": true, "ducked": true, "rolled": true, "stabbed": true,
		"shoved": true, "hurled": true, "slashed": true, "tackled": true, "fled": true,
	}
)

func isOpenQuote(r rune) bool {
	switch r {
	case '"', '“', '「', '『', '«', '‘':
		return true
	}
	return false
}

func isCloseQuote(r rune) bool {
	switch r {
	case '"', '”', '」', '』', '»', '’':
		return true
	}
	return false
}

// IsDialogue reports whether a line is spoken: it opens with a quotation
// mark or a dialogue dash.
func IsDialogue(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "— ") || strings.HasPrefix(line, "-- ") {
		return true
	}
	r := []rune(line)
	return isOpenQuote(r[0])
}

// IsMonologue reports whether a line is inner thought: wholly wrapped in
// emphasis markers, or narrated with a thinking verb.
func IsMonologue(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) >= 3 {
		for _, m := range []string{"*", "_"} {
			if strings.HasPrefix(line, m) && strings.HasSuffix(line, m) && !strings.HasPrefix(line, m+m) {
				return true
			}
		}
	}
	return thoughtRe.MatchString(line)
}

// IsAction reports whether a line is a short beat of physical action:
// a bracketed stage direction, or at most twelve words containing a
// strong action verb.
func IsAction(line string) bool {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
		return true
	}
	words := strings.Fields(Normalize(line))
	if len(words) == 0 || len(words) > 12 {
		return false
	}
	for _, w := range words {
		if actionVerbs[w] {
			return true
		}
	}
	return false
}

// Classify tags a line. Dialogue wins over monologue, monologue over
// action; anything else is narrative.
func Classify(line string) LineKind {
	switch {
	case IsDialogue(line):
		return Dialogue
	case IsMonologue(line):
		return Monologue
	case IsAction(line):
		return Action
	default:
		return Narrative
	}
}

// Profile counts the lines of each kind in a text.
type Profile struct {
	Total int
	Kinds map[LineKind]int
}

// Share returns the fraction of lines of kind k.
func (p Profile) Share(k LineKind) float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Kinds[k]) / float64(p.Total)
}

// ProfileOf classifies every line of text.
func ProfileOf(text string) Profile {
	p := Profile{Kinds: map[LineKind]int{}}
	for _, l := range Lines(text) {
		p.Kinds[Classify(l)]++
		p.Total++
	}
	return p
}

// LinesOf returns the lines of text with the given kind, in order.
func LinesOf(text string, kind LineKind) []string {
	var out []string
	for _, l := range Lines(text) {
		if Classify(l) == kind {
			out = append(out, l)
		}
	}
	return out
}
