package exercise

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout read by [LoadFile]. JSON is valid YAML,
// so both formats share the decoder.
type fileDocument struct {
	Exercises []fileExercise `yaml:"exercises"`
}

type fileExercise struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Content any    `yaml:"content"`
}

// MemStore is an in-memory [Store]. It backs the file-based configuration
// and tests. It is safe for concurrent use.
type MemStore struct {
	mu        sync.RWMutex
	exercises map[string]Exercise
}

// NewMemStore returns a store holding exercises.
func NewMemStore(exercises ...Exercise) *MemStore {
	s := &MemStore{exercises: make(map[string]Exercise, len(exercises))}
	for _, e := range exercises {
		s.Put(e)
	}
	return s
}

// LoadFile reads a YAML or JSON exercise file. Every exercise's content is
// validated against [ContentSchema].
func LoadFile(path string) (*MemStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exercise: open %q: %w", path, err)
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("exercise: load %q: %w", path, err)
	}
	return s, nil
}

// Load decodes an exercise document from r.
func Load(r io.Reader) (*MemStore, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("exercise: read: %w", err)
	}
	var doc fileDocument
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("exercise: decode: %w", err)
	}

	s := NewMemStore()
	for i, fe := range doc.Exercises {
		if fe.ID == "" {
			return nil, fmt.Errorf("exercise: exercises[%d]: id is required", i)
		}
		if _, dup := s.exercises[fe.ID]; dup {
			return nil, fmt.Errorf("exercise: exercises[%d]: duplicate id %q", i, fe.ID)
		}
		qs, err := questionsFrom(fe.Content)
		if err != nil {
			return nil, fmt.Errorf("exercise: %q: %w", fe.ID, err)
		}
		s.Put(Exercise{ID: fe.ID, Title: fe.Title, Questions: qs})
	}
	return s, nil
}

// Put adds or replaces an exercise.
func (s *MemStore) Put(e Exercise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exercises[e.ID] = e
}

// Len returns the number of stored exercises.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exercises)
}

// Question implements [Store].
func (s *MemStore) Question(_ context.Context, exerciseID, questionID string) (Question, error) {
	s.mu.RLock()
	e, ok := s.exercises[exerciseID]
	s.mu.RUnlock()
	if !ok {
		return Question{}, fmt.Errorf("exercise %q: %w", exerciseID, ErrNotFound)
	}
	q, ok := e.Find(questionID)
	if !ok {
		return Question{}, fmt.Errorf("question %q of exercise %q: %w", questionID, exerciseID, ErrNotFound)
	}
	return q, nil
}

// Ping implements [Store]. An in-memory store is always reachable.
func (s *MemStore) Ping(context.Context) error { return nil }

var _ Store = (*MemStore)(nil)
