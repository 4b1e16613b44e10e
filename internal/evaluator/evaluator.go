// Package evaluator asks a language model to grade learner answers.
//
// The [LLM] evaluator builds one prompt per exercise kind, sends it to an
// [llm.Provider] and reads the reply leniently: markdown fences and prose
// around the JSON object are ignored, every field is optional, and a field
// of the wrong type is treated as absent. Callers receive an [Assessment]
// that only carries what the model actually supplied; filling defaults is
// the caller's job.
//
// Three situations are reported as errors so callers can fall back: the
// provider call failed, the reply contained no JSON object
// ([ErrMalformed]), or the reply carried an explicit "error" field
// ([ErrRejected]).
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/pkg/provider/llm"
)

var (
	// ErrMalformed is returned when the model reply is not a JSON object.
	ErrMalformed = errors.New("evaluator: malformed response")

	// ErrRejected is returned when the model reply carries an "error" field.
	ErrRejected = errors.New("evaluator: evaluation rejected")
)

// Dimension names reported by every evaluation.
const (
	Fluency       = "fluency"
	Pronunciation = "pronunciation"
	Vocabulary    = "vocabulary"
	Grammar       = "grammar"
)

// Dimensions lists the dimension names in presentation order.
var Dimensions = []string{Fluency, Pronunciation, Vocabulary, Grammar}

// Assessment is the best-effort content of a model reply. Only fields the
// model supplied with the right type are set.
type Assessment struct {
	// Overall is the 0–100 score; meaningful only when HasOverall is true.
	Overall    int
	HasOverall bool

	// Dimensions holds the dimension scores the model supplied.
	Dimensions map[string]int

	// Verdict is the model's own label, lower-cased ("correct",
	// "incorrect"), or "".
	Verdict string

	Feedback   string
	Suggestion string
}

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 400
)

// Option is a functional option for configuring an [LLM] evaluator.
type Option func(*LLM)

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(e *LLM) { e.temperature = temp }
}

// WithMaxTokens caps the reply length. Default: 400.
func WithMaxTokens(n int) Option {
	return func(e *LLM) { e.maxTokens = n }
}

// WithName sets the provider label used in metrics. Default: "llm".
func WithName(name string) Option {
	return func(e *LLM) { e.name = name }
}

// WithMetrics enables latency and request metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *LLM) { e.metrics = m }
}

// LLM grades answers with a language model. It holds no per-call state and
// is safe for concurrent use.
type LLM struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	name        string
	metrics     *observe.Metrics
}

// New returns an evaluator backed by provider.
func New(provider llm.Provider, opts ...Option) *LLM {
	e := &LLM{
		provider:    provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		name:        "llm",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Word grades the pronunciation of a single target word from what the
// speech recognizer heard.
func (e *LLM) Word(ctx context.Context, target, recognized string) (*Assessment, error) {
	return e.run(ctx, "word", fmt.Sprintf(wordPrompt, target, recognized))
}

// Answer grades userAnswer against the expected answer of a listening
// question.
func (e *LLM) Answer(ctx context.Context, correctAnswer, userAnswer string) (*Assessment, error) {
	return e.run(ctx, "listening", fmt.Sprintf(answerPrompt, correctAnswer, userAnswer))
}

// Sentence grades a free-text answer to question. keywords are the points
// a good answer is expected to mention.
func (e *LLM) Sentence(ctx context.Context, question string, keywords []string, answer string) (*Assessment, error) {
	kw := "(none given)"
	if len(keywords) > 0 {
		kw = strings.Join(keywords, ", ")
	}
	return e.run(ctx, "sentence", fmt.Sprintf(sentencePrompt, question, kw, answer))
}

// Speaking grades a spoken transcript holistically. question may be empty.
func (e *LLM) Speaking(ctx context.Context, transcript, question string) (*Assessment, error) {
	q := "(free speaking, no question)"
	if strings.TrimSpace(question) != "" {
		q = question
	}
	return e.run(ctx, "speaking", fmt.Sprintf(speakingPrompt, q, transcript))
}

func (e *LLM) run(ctx context.Context, kind, userMsg string) (a *Assessment, err error) {
	ctx, span := observe.StartSpan(ctx, "evaluator."+kind)
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
		JSON:         true,
	})
	if e.metrics != nil {
		e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			e.metrics.RecordProviderError(ctx, e.name, "llm")
		}
		e.metrics.RecordProviderRequest(ctx, e.name, "llm", status)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluator: %s: %w", kind, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("evaluator: %s: %w: empty reply", kind, ErrMalformed)
	}

	a, err = Parse(resp.Content)
	if err != nil {
		observe.Logger(ctx).Debug("evaluator: discarded reply", "kind", kind, "err", err, "reply", truncate(resp.Content, 200))
		return nil, fmt.Errorf("evaluator: %s: %w", kind, err)
	}
	return a, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
