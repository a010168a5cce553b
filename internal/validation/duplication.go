package validation

import (
	"strings"

	"github.com/zulandar/quill/internal/prose"
)

// ShingleSize is the word n-gram length used to compare texts.
const ShingleSize = 5

func shingles(tokens []string, k int) map[string]struct{} {
	out := map[string]struct{}{}
	if len(tokens) == 0 {
		return out
	}
	if len(tokens) < k {
		k = len(tokens)
	}
	for i := 0; i+k <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+k], " ")] = struct{}{}
	}
	return out
}

// DuplicationRatio is the share of text's word shingles that already
// appear in any of prior. It is 0 for empty text.
func DuplicationRatio(text string, prior []string) float64 {
	tokens := prose.Tokens(text)
	k := ShingleSize
	if len(tokens) < k {
		k = len(tokens)
	}
	own := shingles(tokens, k)
	if len(own) == 0 {
		return 0
	}
	seen := map[string]struct{}{}
	for _, p := range prior {
		for s := range shingles(prose.Tokens(p), k) {
			seen[s] = struct{}{}
		}
	}
	dup := 0
	for s := range own {
		if _, ok := seen[s]; ok {
			dup++
		}
	}
	return float64(dup) / float64(len(own))
}
