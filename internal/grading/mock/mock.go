// Package mock provides a test double for the grading.Evaluator interface.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/lingualoop/lingualoop/internal/evaluator"
	"github.com/lingualoop/lingualoop/internal/grading"
)

// Call records a single evaluator invocation.
type Call struct {
	// Method is "Word", "Answer", "Sentence" or "Speaking".
	Method string
	// Args holds the string arguments in declaration order.
	Args []string
	// Keywords is set for Sentence calls.
	Keywords []string
}

// Evaluator is a mock implementation of grading.Evaluator. Every method
// returns Result, Err.
type Evaluator struct {
	mu sync.Mutex

	// Result is returned by every method. May be nil.
	Result *evaluator.Assessment

	// Err, if non-nil, is returned as the error.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

func (e *Evaluator) record(c Call) (*evaluator.Assessment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, c)
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Result, nil
}

// Word records the call and returns Result, Err.
func (e *Evaluator) Word(_ context.Context, target, recognized string) (*evaluator.Assessment, error) {
	return e.record(Call{Method: "Word", Args: []string{target, recognized}})
}

// Answer records the call and returns Result, Err.
func (e *Evaluator) Answer(_ context.Context, correctAnswer, userAnswer string) (*evaluator.Assessment, error) {
	return e.record(Call{Method: "Answer", Args: []string{correctAnswer, userAnswer}})
}

// Sentence records the call and returns Result, Err.
func (e *Evaluator) Sentence(_ context.Context, question string, keywords []string, answer string) (*evaluator.Assessment, error) {
	return e.record(Call{Method: "Sentence", Args: []string{question, answer}, Keywords: slices.Clone(keywords)})
}

// Speaking records the call and returns Result, Err.
func (e *Evaluator) Speaking(_ context.Context, transcript, question string) (*evaluator.Assessment, error) {
	return e.record(Call{Method: "Speaking", Args: []string{transcript, question}})
}

// CallCount returns the number of calls so far.
func (e *Evaluator) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = nil
}

var _ grading.Evaluator = (*Evaluator)(nil)
