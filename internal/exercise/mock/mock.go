// Package mock provides a test double for the exercise.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/lingualoop/lingualoop/internal/exercise"
)

// QuestionCall records a single invocation of Question.
type QuestionCall struct {
	ExerciseID string
	QuestionID string
}

// Store is a mock implementation of exercise.Store.
type Store struct {
	mu sync.Mutex

	// QuestionResult is returned by Question when QuestionErr is nil.
	QuestionResult exercise.Question

	// QuestionErr, if non-nil, is returned by Question.
	QuestionErr error

	// PingErr is returned by Ping.
	PingErr error

	// QuestionCalls records every invocation of Question in order.
	QuestionCalls []QuestionCall

	// PingCalls counts Ping invocations.
	PingCalls int
}

// Question records the call and returns QuestionResult, QuestionErr.
func (s *Store) Question(_ context.Context, exerciseID, questionID string) (exercise.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QuestionCalls = append(s.QuestionCalls, QuestionCall{ExerciseID: exerciseID, QuestionID: questionID})
	if s.QuestionErr != nil {
		return exercise.Question{}, s.QuestionErr
	}
	return s.QuestionResult, nil
}

// Ping records the call and returns PingErr.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingCalls++
	return s.PingErr
}

// Reset clears all recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QuestionCalls = nil
	s.PingCalls = 0
}

var _ exercise.Store = (*Store)(nil)
