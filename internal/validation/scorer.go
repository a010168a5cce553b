package validation

import (
	"strings"
	"unicode"

	"github.com/zulandar/quill/internal/draft"
	"github.com/zulandar/quill/internal/prose"
)

// Quality sub-score weights.
const (
	WeightPlot      = 0.30
	WeightCharacter = 0.25
	WeightStyle     = 0.25
	WeightTone      = 0.20
)

// Scorer rates a candidate on four 0-10 sub-scores. text is the plain-text
// body.
type Scorer interface {
	Score(c draft.Candidate, text string) draft.Scores
}

// Overall is the weighted quality score, with each sub-score clamped to
// [0, 10].
func Overall(s draft.Scores) float64 {
	return WeightPlot*clamp10(s.Plot) +
		WeightCharacter*clamp10(s.Character) +
		WeightStyle*clamp10(s.Style) +
		WeightTone*clamp10(s.Tone)
}

func clamp10(v float64) float64 {
	return max(0, min(10, v))
}

// SelfReportedScorer trusts scores the generator attached to the
// candidate and falls back to the heuristic when there are none.
type SelfReportedScorer struct {
	Fallback Scorer
}

func (s SelfReportedScorer) Score(c draft.Candidate, text string) draft.Scores {
	if c.Scores != nil {
		return *c.Scores
	}
	if s.Fallback != nil {
		return s.Fallback.Score(c, text)
	}
	return HeuristicScorer{}.Score(c, text)
}

// HeuristicScorer rates text from surface statistics: reported events for
// plot, dialogue and cast for character, lexical variety and sentence
// length for style, shouting for tone.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(c draft.Candidate, text string) draft.Scores {
	tokens := prose.Tokens(text)
	if len(tokens) == 0 {
		return draft.Scores{}
	}
	sentences := prose.Sentences(text)
	return draft.Scores{
		Plot:      plotScore(c.Facts, len(sentences)),
		Character: characterScore(c.Facts, prose.ProfileOf(text)),
		Style:     styleScore(tokens, len(sentences)),
		Tone:      toneScore(text, len(sentences)),
	}
}

func plotScore(f draft.Facts, sentences int) float64 {
	score := 5.0 + float64(min(len(f.Events), 3))
	if f.Cliffhanger != "" || f.Ending != "" || len(f.Resolved) > 0 || len(f.Planted) > 0 {
		score++
	}
	if sentences >= 10 {
		score++
	}
	return clamp10(score)
}

func characterScore(f draft.Facts, p prose.Profile) float64 {
	voiced := p.Share(prose.Dialogue) + p.Share(prose.Monologue)
	score := 5.0 + 3*min(1, voiced/0.2)

	cast := map[string]bool{}
	for _, n := range f.Mentions {
		cast[draft.NameKey(n)] = true
	}
	for _, c := range f.Introductions {
		cast[draft.NameKey(c.Name)] = true
	}
	score += float64(min(len(cast), 2))
	return clamp10(score)
}

// styleScore rewards lexical variety over the first 1000 words and
// penalizes very short or very long average sentences.
func styleScore(tokens []string, sentences int) float64 {
	window := tokens
	if len(window) > 1000 {
		window = window[:1000]
	}
	unique := map[string]bool{}
	for _, t := range window {
		unique[t] = true
	}
	ttr := float64(len(unique)) / float64(len(window))
	score := 10 * min(1, ttr/0.5)

	if sentences > 0 {
		avg := float64(len(tokens)) / float64(sentences)
		if avg < 6 || avg > 30 {
			score -= 2
		}
	}
	return clamp10(score)
}

func toneScore(text string, sentences int) float64 {
	score := 9.0
	if sentences > 0 && float64(strings.Count(text, "!"))/float64(sentences) > 0.3 {
		score -= 2
	}
	if strings.Contains(text, "!!") || strings.Contains(text, "??") {
		score--
	}
	words, shouted := 0, 0
	for _, w := range strings.Fields(text) {
		letters := 0
		upper := true
		for _, r := range w {
			if unicode.IsLetter(r) {
				letters++
				if !unicode.IsUpper(r) {
					upper = false
				}
			}
		}
		if letters == 0 {
			continue
		}
		words++
		if letters > 1 && upper {
			shouted++
		}
	}
	if words > 0 && float64(shouted)/float64(words) > 0.05 {
		score -= 2
	}
	return clamp10(score)
}
