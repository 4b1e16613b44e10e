// Package grading turns a learner response into a scored, labelled outcome.
//
// A [Grader] runs every request through the same stages:
//
//  1. Collect: resolve the expected answer points, from the request or the
//     exercise store, and transcribe audio when the answer was spoken.
//  2. Score: ask the AI evaluator, if one is configured.
//  3. Normalize: fill every missing field of the AI reply with its zero value
//     and clamp all scores to 0–100.
//  4. Fallback: when the AI step failed, word answers are scored with the
//     similarity engine and sentence answers with the rubric. Listening and
//     speaking answers have no local scorer and fail with [*EvaluationError].
//  5. Threshold: derive the correct/incorrect verdict.
//  6. Emit: synthesize a suggestion from the expected points when the answer
//     is incorrect and nothing else suggested an improvement.
//
// Graders hold no per-request state and are safe for concurrent use.
package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lingualoop/lingualoop/internal/evaluator"
	"github.com/lingualoop/lingualoop/internal/exercise"
	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/internal/phonetic"
	"github.com/lingualoop/lingualoop/internal/rubric"
	"github.com/lingualoop/lingualoop/internal/similarity"
	"github.com/lingualoop/lingualoop/internal/speech"
)

// Mode selects the kind of exercise being graded.
type Mode string

const (
	ModeWord      Mode = "word"
	ModeSentence  Mode = "sentence"
	ModeListening Mode = "listening"
	ModeSpeaking  Mode = "speaking"
)

// ParseMode validates s as a [Mode].
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeWord, ModeSentence, ModeListening, ModeSpeaking:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
}

// hasFallback reports whether m has a local scorer.
func (m Mode) hasFallback() bool {
	return m == ModeWord || m == ModeSentence
}

// Verdict is the binary grading label.
type Verdict string

const (
	Correct   Verdict = "correct"
	Incorrect Verdict = "incorrect"
)

// Source names the scorer that produced an outcome.
type Source string

const (
	SourceAI         Source = "ai"
	SourceSimilarity Source = "similarity"
	SourceRubric     Source = "rubric"
)

var (
	// ErrInvalidRequest is returned when a request misses the inputs its mode
	// needs.
	ErrInvalidRequest = errors.New("grading: invalid request")

	// ErrNoEvaluator is wrapped in an [*EvaluationError] when a mode without
	// a local scorer is graded and no AI evaluator is configured.
	ErrNoEvaluator = errors.New("grading: no AI evaluator configured")

	// ErrNoStore is wrapped in an [*EvaluationError] when a question lookup is
	// requested and no exercise store is configured.
	ErrNoStore = errors.New("grading: no exercise store configured")

	// ErrNoTranscriber is returned for spoken answers when no speech
	// recognizer is configured.
	ErrNoTranscriber = errors.New("grading: no speech recognizer configured")
)

// EvaluationError is the terminal failure of an evaluation. It is only
// returned when a required collaborator failed and the mode has no local
// scorer to fall back to.
type EvaluationError struct {
	Mode Mode
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("grading: %s evaluation failed: %v", e.Mode, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Evaluator is the AI collaborator. Every method returns a best-effort
// assessment or an error; the grader treats any error as "AI unavailable".
type Evaluator interface {
	Word(ctx context.Context, target, recognized string) (*evaluator.Assessment, error)
	Answer(ctx context.Context, correctAnswer, userAnswer string) (*evaluator.Assessment, error)
	Sentence(ctx context.Context, question string, keywords []string, answer string) (*evaluator.Assessment, error)
	Speaking(ctx context.Context, transcript, question string) (*evaluator.Assessment, error)
}

var _ Evaluator = (*evaluator.LLM)(nil)

// Transcriber converts a spoken answer to text. [*speech.Normalizer]
// implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, up speech.Upload) (string, error)
}

var _ Transcriber = (*speech.Normalizer)(nil)

// Request is one learner response.
type Request struct {
	Mode Mode

	// Target is the word to pronounce in word mode.
	Target string

	// Answer is the learner's text: the recognized word, the sentence, or
	// the speaking transcript. It is replaced by the transcript when Audio
	// is set.
	Answer string

	// Audio is an optional spoken answer; Filename carries its declared
	// name and Language overrides the recognition language.
	Audio    []byte
	Filename string
	Language string

	// Question and Keywords describe the expected answer inline.
	Question string
	Keywords []string

	// ExerciseID and QuestionID look the question up in the exercise store.
	// Stored values fill Question and Keywords when those are empty.
	ExerciseID string
	QuestionID string
}

// ScoreResult is the normalized score. Dimensions always holds every entry
// of [evaluator.Dimensions].
type ScoreResult struct {
	Overall    int            `json:"overall_score"`
	Dimensions map[string]int `json:"dimension_scores"`
	Feedback   string         `json:"feedback"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// Outcome is the emitted result of an evaluation.
type Outcome struct {
	Mode    Mode        `json:"mode"`
	Score   ScoreResult `json:"score"`
	Verdict Verdict     `json:"verdict"`
	Source  Source      `json:"source"`

	// AIVerdict is the label the AI supplied, if any. It is informational;
	// Verdict is always derived from the thresholds.
	AIVerdict string `json:"ai_verdict,omitempty"`

	// Alignment, Mistakes and Phonetic are set in word mode only.
	Alignment []similarity.Step    `json:"alignment,omitempty"`
	Mistakes  []similarity.Span    `json:"mistakes,omitempty"`
	Phonetic  *phonetic.Comparison `json:"phonetic,omitempty"`

	// Rubric is set when the rubric produced the score.
	Rubric *rubric.Result `json:"rubric,omitempty"`

	// Transcript is the recognized text of a spoken answer.
	Transcript string `json:"transcript,omitempty"`
}

// Thresholds decide the verdict. A score at or above Pass is correct; a
// score below Floor is incorrect whatever else applies.
type Thresholds struct {
	Pass  int
	Floor int
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Pass: 70, Floor: 40}
}

// Option is a functional option for configuring a [Grader].
type Option func(*Grader)

// WithEvaluator sets the AI evaluator. Without one, word and sentence
// answers are always scored locally.
func WithEvaluator(e Evaluator) Option {
	return func(g *Grader) { g.ai = e }
}

// WithStore sets the exercise store used for question lookups.
func WithStore(s exercise.Store) Option {
	return func(g *Grader) { g.store = s }
}

// WithTranscriber enables spoken answers.
func WithTranscriber(t Transcriber) Option {
	return func(g *Grader) { g.speech = t }
}

// WithPhonetic overrides the matcher used for word feedback.
func WithPhonetic(m *phonetic.Matcher) Option {
	return func(g *Grader) { g.phonetic = m }
}

// WithThresholds sets the verdict thresholds. Default: pass 70, floor 40.
func WithThresholds(t Thresholds) Option {
	return func(g *Grader) { g.thresholds.Store(&t) }
}

// WithAITimeout bounds each AI call. Zero means the request context alone
// applies.
func WithAITimeout(d time.Duration) Option {
	return func(g *Grader) { g.aiTimeout = d }
}

// WithMetrics enables evaluation metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Grader) { g.metrics = m }
}

// Grader runs evaluations.
type Grader struct {
	ai         Evaluator
	store      exercise.Store
	speech     Transcriber
	phonetic   *phonetic.Matcher
	aiTimeout  time.Duration
	metrics    *observe.Metrics
	thresholds atomic.Pointer[Thresholds]
}

// New returns a Grader. Every collaborator is optional.
func New(opts ...Option) *Grader {
	g := &Grader{phonetic: phonetic.New()}
	t := DefaultThresholds()
	g.thresholds.Store(&t)
	for _, o := range opts {
		o(g)
	}
	return g
}

// Thresholds returns the thresholds currently in effect.
func (g *Grader) Thresholds() Thresholds {
	return *g.thresholds.Load()
}

// SetThresholds replaces the thresholds for subsequent evaluations.
func (g *Grader) SetThresholds(t Thresholds) {
	g.thresholds.Store(&t)
}

// Evaluate grades req.
//
// The returned error is an [*EvaluationError] when the AI or the exercise
// store failed for a mode without a local scorer, a [*speech.AudioError]
// when a spoken answer could not be transcribed, or wraps
// [ErrInvalidRequest].
func (g *Grader) Evaluate(ctx context.Context, req Request) (out *Outcome, err error) {
	ctx, span := observe.StartSpan(ctx, "grading.evaluate")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	if g.metrics != nil {
		g.metrics.ActiveEvaluations.Add(ctx, 1)
		defer g.metrics.ActiveEvaluations.Add(ctx, -1)
	}

	out, err = g.evaluate(ctx, req)
	if err != nil {
		var evalErr *EvaluationError
		if g.metrics != nil && errors.As(err, &evalErr) {
			g.metrics.RecordEvaluationFailure(ctx, string(evalErr.Mode))
		}
		return nil, err
	}
	if g.metrics != nil {
		g.metrics.RecordEvaluation(ctx, string(out.Mode), string(out.Source), string(out.Verdict), time.Since(start))
	}
	observe.Logger(ctx).Debug("grading: evaluated",
		"mode", out.Mode, "source", out.Source, "score", out.Score.Overall, "verdict", out.Verdict)
	return out, nil
}

func (g *Grader) evaluate(ctx context.Context, req Request) (*Outcome, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// ── Collect ──
	keypoints, err := g.collect(ctx, &req)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Mode: req.Mode}
	if len(req.Audio) > 0 {
		text, err := g.transcribe(ctx, req)
		if err != nil {
			return nil, err
		}
		req.Answer = text
		out.Transcript = text
	}

	// ── Score, Normalize ──
	a, aiErr := g.score(ctx, req, keypoints)
	if aiErr == nil {
		out.Score = normalize(a)
		out.Source = SourceAI
		out.AIVerdict = a.Verdict
	}

	// ── Fallback ──
	if aiErr != nil {
		if !req.Mode.hasFallback() {
			return nil, &EvaluationError{Mode: req.Mode, Err: aiErr}
		}
		if !errors.Is(aiErr, ErrNoEvaluator) {
			observe.Logger(ctx).Warn("grading: AI evaluation failed, scoring locally", "mode", req.Mode, "err", aiErr)
			if g.metrics != nil {
				g.metrics.RecordFallback(ctx, string(req.Mode))
			}
		}
		switch req.Mode {
		case ModeWord:
			out.Score = similarityScore(req.Target, req.Answer)
			out.Source = SourceSimilarity
		case ModeSentence:
			r := rubric.Score(req.Question, req.Keywords, req.Answer)
			out.Score = rubricScore(r)
			out.Source = SourceRubric
			out.Rubric = &r
		}
	}

	if req.Mode == ModeWord {
		g.annotateWord(out, req.Target, req.Answer)
	}

	// ── Threshold, Emit ──
	out.Verdict = g.Thresholds().verdict(out.Score.Overall)
	if out.Verdict == Incorrect && out.Score.Suggestion == "" && len(keypoints) > 0 {
		out.Score.Suggestion = "Expected points: " + strings.Join(keypoints, ", ")
	}
	return out, nil
}

func validate(req Request) error {
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return err
	}
	if req.Mode == ModeWord && strings.TrimSpace(req.Target) == "" {
		return fmt.Errorf("%w: word mode needs a target word", ErrInvalidRequest)
	}
	if req.Mode == ModeListening && (req.ExerciseID == "" || req.QuestionID == "") && len(req.Keywords) == 0 {
		return fmt.Errorf("%w: listening mode needs a question id or expected points", ErrInvalidRequest)
	}
	if (req.ExerciseID == "") != (req.QuestionID == "") {
		return fmt.Errorf("%w: exercise id and question id must be given together", ErrInvalidRequest)
	}
	return nil
}

// collect resolves the stored question, if any, and returns the expected
// answer points used for suggestions.
func (g *Grader) collect(ctx context.Context, req *Request) ([]string, error) {
	if req.ExerciseID != "" {
		if g.store == nil {
			return nil, &EvaluationError{Mode: req.Mode, Err: ErrNoStore}
		}
		q, err := g.store.Question(ctx, req.ExerciseID, req.QuestionID)
		if err != nil {
			return nil, &EvaluationError{Mode: req.Mode, Err: err}
		}
		if req.Question == "" {
			req.Question = q.Question
		}
		if len(req.Keywords) == 0 {
			req.Keywords = q.ExpectedAnswerPoints
		}
	}
	if req.Mode == ModeWord {
		return nil, nil
	}
	return req.Keywords, nil
}

func (g *Grader) transcribe(ctx context.Context, req Request) (string, error) {
	if g.speech == nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, ErrNoTranscriber)
	}
	hints := req.Keywords
	if req.Mode == ModeWord {
		hints = []string{req.Target}
	}
	return g.speech.Transcribe(ctx, speech.Upload{
		Data:     req.Audio,
		Filename: req.Filename,
		Language: req.Language,
		Keywords: hints,
	})
}

// score runs the AI step. Any failure, including a missing evaluator,
// is returned as an error for the fallback decision.
func (g *Grader) score(ctx context.Context, req Request, keypoints []string) (*evaluator.Assessment, error) {
	if g.ai == nil {
		return nil, ErrNoEvaluator
	}
	if g.aiTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.aiTimeout)
		defer cancel()
	}

	var (
		a   *evaluator.Assessment
		err error
	)
	switch req.Mode {
	case ModeWord:
		a, err = g.ai.Word(ctx, req.Target, req.Answer)
	case ModeSentence:
		a, err = g.ai.Sentence(ctx, req.Question, req.Keywords, req.Answer)
	case ModeListening:
		a, err = g.ai.Answer(ctx, strings.Join(keypoints, ", "), req.Answer)
	case ModeSpeaking:
		a, err = g.ai.Speaking(ctx, req.Answer, req.Question)
	}
	if err == nil && a == nil {
		err = evaluator.ErrMalformed
	}
	return a, err
}

// annotateWord adds the alignment, the mistake spans and the phonetic
// check. Pronunciation feedback is used when the scorer left none.
func (g *Grader) annotateWord(out *Outcome, target, recognized string) {
	out.Alignment = similarity.Align(target, recognized)
	out.Mistakes = similarity.Localize(out.Alignment)
	cmp := g.phonetic.Compare(target, recognized)
	out.Phonetic = &cmp
	if out.Score.Feedback == "" {
		out.Score.Feedback = wordFeedback(target, recognized, similarity.Score(target, recognized), out.Mistakes, cmp)
	}
}

func (t Thresholds) verdict(score int) Verdict {
	if score < t.Floor {
		return Incorrect
	}
	if score >= t.Pass {
		return Correct
	}
	return Incorrect
}
