// Package phonetic decides whether a recognized word sounds like its target
// even when the spelling differs.
//
// The check runs in two stages:
//
//  1. Double Metaphone codes are computed for every token of both strings.
//     If any code of the recognized text overlaps with any code of the
//     target, the pair is a phonetic candidate.
//
//  2. Jaro-Winkler similarity (case-insensitive) ranks the candidate. A
//     candidate is accepted as "sounds alike" only when its score reaches
//     the phonetic threshold (default 0.70). Without a phonetic overlap the
//     pair still counts when the pure string score reaches the fuzzy
//     threshold (default 0.85).
//
// Multi-word targets ("ice cream") compare token by token as well as on the
// concatenated strings, so "icecream" matches.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically overlapping pair to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when the
// phonetic codes do not overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Comparison is the result of [Matcher.Compare].
type Comparison struct {
	// TargetCode and RecognizedCode are the primary Double Metaphone codes of
	// the concatenated tokens.
	TargetCode     string `json:"target_code"`
	RecognizedCode string `json:"recognized_code"`

	// CodesOverlap reports whether any Double Metaphone code is shared.
	CodesOverlap bool `json:"codes_overlap"`

	// Closeness is the best Jaro-Winkler score in [0, 1].
	Closeness float64 `json:"closeness"`

	// SoundsAlike is the accepted verdict after applying the thresholds.
	SoundsAlike bool `json:"sounds_alike"`
}

// Matcher compares pronunciations. It is read-only after construction and
// safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Compare reports how close recognized sounds to target. Either side empty
// yields the zero Comparison.
func (m *Matcher) Compare(target, recognized string) Comparison {
	targetLower := strings.ToLower(strings.TrimSpace(target))
	recLower := strings.ToLower(strings.TrimSpace(recognized))
	if targetLower == "" || recLower == "" {
		return Comparison{}
	}
	targetTokens := strings.Fields(targetLower)
	recTokens := strings.Fields(recLower)

	c := Comparison{
		TargetCode:     primaryCode(targetTokens),
		RecognizedCode: primaryCode(recTokens),
		CodesOverlap:   codesOverlap(codesForTokens(targetTokens), codesForTokens(recTokens)),
		Closeness:      bestJWScore(recTokens, targetTokens, recLower, targetLower),
	}
	if c.CodesOverlap {
		c.SoundsAlike = c.Closeness >= m.phoneticThreshold
	} else {
		c.SoundsAlike = c.Closeness >= m.fuzzyThreshold
	}
	return c
}

// Match returns the candidate that sounds most like word. When nothing is
// close enough, matched is false and best is "".
func (m *Matcher) Match(word string, candidates []string) (best string, confidence float64, matched bool) {
	bestPhonetic := false
	for _, cand := range candidates {
		c := m.Compare(cand, word)
		if !c.SoundsAlike {
			continue
		}
		// A phonetic hit always beats a purely fuzzy one.
		if (c.CodesOverlap && !bestPhonetic) || (c.CodesOverlap == bestPhonetic && c.Closeness > confidence) {
			best, confidence, bestPhonetic = cand, c.Closeness, c.CodesOverlap
		}
	}
	return best, confidence, best != ""
}

func primaryCode(tokens []string) string {
	p, _ := matchr.DoubleMetaphone(strings.Join(tokens, ""))
	return p
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens and for their concatenation. Empty codes (produced when a
// word has no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2+2)
	add := func(w string) {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	for _, t := range tokens {
		add(t)
	}
	if len(tokens) > 1 {
		add(strings.Join(tokens, ""))
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity using the full
// strings, the space-stripped strings, and the best token pair.
func bestJWScore(inputTokens, targetTokens []string, inputFull, targetFull string) float64 {
	score := matchr.JaroWinkler(inputFull, targetFull, false)

	if len(inputTokens) > 1 || len(targetTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(targetTokens, ""), false); s > score {
			score = s
		}
		for _, it := range inputTokens {
			for _, tt := range targetTokens {
				if s := matchr.JaroWinkler(it, tt, false); s > score {
					score = s
				}
			}
		}
	}
	return score
}
