// Package rubric scores free-text answers with a fixed, deterministic rubric.
//
// The rubric combines four signals into a 0–100 score:
//
//	keyword coverage   0–40  share of expected keywords found in the answer
//	length/structure   0–30  word-count bucket
//	grammar signal     0–20  four boolean indicators × 5
//	fluency signal     0–10  three boolean indicators × 10/3
//
// Weights and thresholds are fixed constants. No external service is
// involved; the rubric is the local fallback for sentence answers.
package rubric

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Weights and buckets.
const (
	MaxKeyword = 40.0
	MaxLength  = 30
	MaxGrammar = 20
	MaxFluency = 10.0
	MaxTotal   = 100

	grammarPerIndicator = 5
	fluencyPerIndicator = MaxFluency / 3

	minAnswerRunes  = 3
	maxNamedMissing = 3
)

// Feedback tiers.
const (
	tierExcellent = 80
	tierGood      = 60
	tierFair      = 40
)

// Suggestion catalog.
const (
	SuggestKeywords = "Use more keywords related to the topic."
	SuggestExpand   = "Expand your answer with more details."
	SuggestGrammar  = "Pay attention to grammar and sentence structure."
	SuggestFluency  = "Try to speak more slowly and clearly."
)

const shortAnswerFeedback = "Your answer is too short to evaluate. Please give a complete answer."

var shortAnswerSuggestions = []string{
	"Give a longer answer.",
	"Answer in complete sentences.",
	"Include the key points from the question.",
}

var (
	articles = set("a", "an", "the")
	copulas  = set(
		"is", "am", "are", "was", "were", "be", "been", "being",
		"do", "does", "did", "have", "has", "had",
		"will", "would", "can", "could", "should", "may", "might", "must",
	)
	fillers = set("um", "uh", "er", "ah", "like", "so", "well", "yeah")
)

// Breakdown holds the four sub-scores. Fluency keeps its fractional value;
// rounding happens only when the total is computed.
type Breakdown struct {
	Keyword float64 `json:"keyword_score"`
	Length  int     `json:"length_score"`
	Grammar int     `json:"grammar_score"`
	Fluency float64 `json:"fluency_score"`
}

// Result is the full output of [Score].
type Result struct {
	Breakdown

	// Total is the rounded sum of the sub-scores, capped at 100.
	Total int `json:"total"`

	// WordCount is the number of whitespace-separated words in the answer.
	WordCount int `json:"word_count"`

	Found       []string `json:"found_keywords"`
	Missing     []string `json:"missing_keywords"`
	Suggestions []string `json:"suggestions"`
	Feedback    string   `json:"feedback"`
}

// Score grades answer against the expected keywords. The question is accepted
// for context only and does not influence the score.
//
// Answers shorter than three characters short-circuit to an all-zero result
// with every keyword reported missing. An empty keyword list yields a keyword
// score of 0 rather than dividing by zero.
func Score(question string, keywords []string, answer string) Result {
	answer = normalize(answer)
	kws := normalizeKeywords(keywords)

	if utf8.RuneCountInString(answer) < minAnswerRunes {
		return Result{
			Found:       []string{},
			Missing:     kws,
			Suggestions: append([]string(nil), shortAnswerSuggestions...),
			Feedback:    shortAnswerFeedback,
		}
	}

	words := strings.Fields(answer)
	tokens := bareTokens(words)

	var r Result
	r.WordCount = len(words)
	r.Found, r.Missing = matchKeywords(kws, answer)
	if len(kws) > 0 {
		r.Keyword = float64(len(r.Found)) / float64(len(kws)) * MaxKeyword
	}
	r.Length = lengthScore(r.WordCount)
	r.Grammar = grammarScore(answer, tokens)
	r.Fluency = fluencyScore(answer, r.WordCount, tokens)

	r.Total = int(math.Round(r.Keyword + float64(r.Length) + float64(r.Grammar) + r.Fluency))
	r.Total = min(max(r.Total, 0), MaxTotal)

	r.Feedback = feedback(r)
	r.Suggestions = suggestions(r, len(kws))
	return r
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = normalize(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func matchKeywords(kws []string, answer string) (found, missing []string) {
	found, missing = []string{}, []string{}
	for _, k := range kws {
		if strings.Contains(answer, k) {
			found = append(found, k)
		} else {
			missing = append(missing, k)
		}
	}
	return found, missing
}

func lengthScore(wc int) int {
	switch {
	case wc < 5:
		return 10
	case wc < 10:
		return 20
	case wc < 20:
		return 25
	default:
		return MaxLength
	}
}

func grammarScore(answer string, tokens []string) int {
	n := 0
	if strings.ContainsAny(answer, ".!?") {
		n++
	}
	if containsAny(tokens, articles) {
		n++
	}
	if containsAny(tokens, copulas) {
		n++
	}
	if strings.Contains(answer, ",") {
		n++
	}
	return n * grammarPerIndicator
}

func fluencyScore(answer string, wc int, tokens []string) float64 {
	n := 0
	if wc > 8 {
		n++
	}
	if !repeatedFiller(tokens) {
		n++
	}
	if len(strings.Split(answer, " ")) > 3 {
		n++
	}
	return float64(n) * fluencyPerIndicator
}

// repeatedFiller reports whether any filler word occurs three times in a row.
func repeatedFiller(tokens []string) bool {
	for i := 0; i+2 < len(tokens); i++ {
		t := tokens[i]
		if _, ok := fillers[t]; ok && tokens[i+1] == t && tokens[i+2] == t {
			return true
		}
	}
	return false
}

func feedback(r Result) string {
	var parts []string
	switch {
	case r.Total >= tierExcellent:
		parts = append(parts, "Excellent answer!")
	case r.Total >= tierGood:
		parts = append(parts, "Good answer.")
	case r.Total >= tierFair:
		parts = append(parts, "Fair attempt, but there is room for improvement.")
	default:
		parts = append(parts, "Your answer needs more work.")
	}
	if len(r.Found) > 0 {
		parts = append(parts, "You mentioned: "+strings.Join(r.Found, ", ")+".")
	}
	if len(r.Missing) > 0 {
		named := r.Missing[:min(len(r.Missing), maxNamedMissing)]
		parts = append(parts, "Consider including: "+strings.Join(named, ", ")+".")
	}
	if r.WordCount < 10 {
		parts = append(parts, "Try to give a longer answer.")
	}
	if r.Grammar < 10 {
		parts = append(parts, "Check your grammar and use complete sentences.")
	}
	return strings.Join(parts, " ")
}

func suggestions(r Result, expected int) []string {
	out := []string{}
	if float64(len(r.Found)) < float64(expected)*0.5 {
		out = append(out, SuggestKeywords)
	}
	if r.WordCount < 15 {
		out = append(out, SuggestExpand)
	}
	if r.Grammar < 15 {
		out = append(out, SuggestGrammar)
	}
	if r.Fluency < 7 {
		out = append(out, SuggestFluency)
	}
	return out
}

// bareTokens strips leading and trailing punctuation from each word.
func bareTokens(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func containsAny(tokens []string, words map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := words[t]; ok {
			return true
		}
	}
	return false
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
