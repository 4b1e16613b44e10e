// Package exercise looks up the stored questions that answers are graded
// against.
//
// An exercise carries free-form JSON content. The only part the grader
// relies on is the "questions" array; every question has an id, the
// question text, and the expected answer points. Content is validated
// against a JSON Schema whenever it is loaded, so a malformed exercise is
// reported as [ErrInvalidContent] instead of surfacing as a missing field
// deep inside an evaluation.
package exercise

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the exercise or the question does not exist.
	ErrNotFound = errors.New("exercise: not found")

	// ErrInvalidContent is returned when stored content fails validation.
	ErrInvalidContent = errors.New("exercise: invalid content")
)

// Question is one gradable question of an exercise.
type Question struct {
	ID                   string   `json:"id" yaml:"id"`
	Question             string   `json:"question" yaml:"question"`
	ExpectedAnswerPoints []string `json:"expected_answer_points" yaml:"expected_answer_points"`
}

// Exercise groups questions under a title.
type Exercise struct {
	ID        string
	Title     string
	Questions []Question
}

// Find returns the question with the given id.
func (e *Exercise) Find(questionID string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// Store resolves questions. Implementations must be safe for concurrent use.
type Store interface {
	// Question returns the question questionID of exercise exerciseID.
	// Returns an error wrapping ErrNotFound when either does not exist.
	Question(ctx context.Context, exerciseID, questionID string) (Question, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
