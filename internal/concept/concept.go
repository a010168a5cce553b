// Package concept picks the genre and theme of new Works.
package concept

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/zulandar/quill/internal/config"
)

// Concept is the premise seed of a Work. Variant distinguishes repeats of
// the same genre and theme.
type Concept struct {
	Genre   string `json:"genre"`
	Theme   string `json:"theme"`
	Variant string `json:"variant,omitempty"`
}

// Key identifies a concept for duplicate detection.
func (c Concept) Key() string { return KeyOf(c.Genre, c.Theme, c.Variant) }

// Tags returns the concept as Work tags.
func (c Concept) Tags() []string {
	tags := []string{c.Genre, c.Theme}
	if c.Variant != "" {
		tags = append(tags, c.Variant)
	}
	return tags
}

func (c Concept) String() string {
	if c.Variant == "" {
		return c.Genre + "/" + c.Theme
	}
	return c.Genre + "/" + c.Theme + "/" + c.Variant
}

// KeyOf builds a concept key.
func KeyOf(genre, theme, variant string) string {
	return strings.ToLower(genre + "|" + theme + "|" + variant)
}

// Picker draws unused concepts with a bounded number of random attempts.
type Picker struct {
	Genres      []string
	Themes      []string
	MaxAttempts int
	Rand        *rand.Rand
}

// New builds a picker from config. A zero seed draws from the runtime's
// random source.
func New(cfg config.ConceptConfig) *Picker {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Picker{
		Genres:      cfg.Genres,
		Themes:      cfg.Themes,
		MaxAttempts: cfg.MaxAttempts,
		Rand:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Pick returns a concept whose key is not in taken. It tries up to
// MaxAttempts random genre and theme pairs; when every attempt collides it
// falls back to the last pair tagged with the lowest free variant "vN".
func (p *Picker) Pick(taken map[string]bool) (Concept, error) {
	if len(p.Genres) == 0 || len(p.Themes) == 0 {
		return Concept{}, fmt.Errorf("concept: genre and theme pools must not be empty")
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var c Concept
	for i := 0; i < attempts; i++ {
		c = Concept{
			Genre: p.Genres[p.Rand.IntN(len(p.Genres))],
			Theme: p.Themes[p.Rand.IntN(len(p.Themes))],
		}
		if !taken[c.Key()] {
			return c, nil
		}
	}
	for n := 2; ; n++ {
		c.Variant = fmt.Sprintf("v%d", n)
		if !taken[c.Key()] {
			return c, nil
		}
	}
}
