package grading

import (
	"fmt"
	"math"
	"strings"

	"github.com/lingualoop/lingualoop/internal/evaluator"
	"github.com/lingualoop/lingualoop/internal/phonetic"
	"github.com/lingualoop/lingualoop/internal/rubric"
	"github.com/lingualoop/lingualoop/internal/similarity"
)

// Word feedback.
const (
	goodPronunciationAbove = 80

	feedbackGoodPronunciation = "Very good pronunciation!"
	feedbackKeepPractising    = "Keep practising."
)

// normalize turns a best-effort assessment into a complete ScoreResult.
// Missing values become zero; every score is clamped to 0–100.
func normalize(a *evaluator.Assessment) ScoreResult {
	r := ScoreResult{Dimensions: zeroDimensions()}
	if a == nil {
		return r
	}
	if a.HasOverall {
		r.Overall = clamp(a.Overall)
	}
	for _, d := range evaluator.Dimensions {
		if v, ok := a.Dimensions[d]; ok {
			r.Dimensions[d] = clamp(v)
		}
	}
	r.Feedback = strings.TrimSpace(a.Feedback)
	r.Suggestion = strings.TrimSpace(a.Suggestion)
	return r
}

// similarityScore is the local word score. Only the pronunciation
// dimension carries a signal.
func similarityScore(target, recognized string) ScoreResult {
	score := similarity.Score(target, recognized)
	r := ScoreResult{Overall: score, Dimensions: zeroDimensions()}
	r.Dimensions[evaluator.Pronunciation] = score
	return r
}

// rubricScore maps the rubric breakdown onto the dimension scale. The
// keyword share stands in for vocabulary; text answers carry no
// pronunciation signal.
func rubricScore(res rubric.Result) ScoreResult {
	r := ScoreResult{
		Overall:    clamp(res.Total),
		Dimensions: zeroDimensions(),
		Feedback:   res.Feedback,
		Suggestion: strings.Join(res.Suggestions, " "),
	}
	r.Dimensions[evaluator.Vocabulary] = percent(res.Keyword, rubric.MaxKeyword)
	r.Dimensions[evaluator.Grammar] = percent(float64(res.Grammar), rubric.MaxGrammar)
	r.Dimensions[evaluator.Fluency] = percent(res.Fluency, rubric.MaxFluency)
	return r
}

// wordFeedback describes a pronunciation attempt. Below the praise
// threshold it names the first mistake.
func wordFeedback(target, recognized string, score int, mistakes []similarity.Span, cmp phonetic.Comparison) string {
	if score > goodPronunciationAbove {
		return feedbackGoodPronunciation
	}
	target = strings.TrimSpace(target)
	switch {
	case strings.TrimSpace(recognized) == "":
		return feedbackKeepPractising + " No speech was recognized; try again."
	case cmp.SoundsAlike:
		return fmt.Sprintf("%s Sounds close; check the spelling of %q.", feedbackKeepPractising, target)
	case len(mistakes) == 0:
		return feedbackKeepPractising
	}

	m := mistakes[0]
	var hint string
	switch m.Op {
	case similarity.OpReplace:
		hint = fmt.Sprintf("%q in %q was heard as %q.", m.Target, target, m.Recognized)
	case similarity.OpDelete:
		hint = fmt.Sprintf("%q in %q was not heard.", m.Target, target)
	case similarity.OpInsert:
		hint = fmt.Sprintf("An extra %q was heard.", m.Recognized)
	}
	return feedbackKeepPractising + " " + hint
}

func zeroDimensions() map[string]int {
	dims := make(map[string]int, len(evaluator.Dimensions))
	for _, d := range evaluator.Dimensions {
		dims[d] = 0
	}
	return dims
}

func clamp(v int) int {
	return min(max(v, 0), 100)
}

func percent(v, maxV float64) int {
	if maxV <= 0 {
		return 0
	}
	return clamp(int(math.Round(v / maxV * 100)))
}
