// Package postgres provides an exercise.Store backed by PostgreSQL.
//
// Exercises live in a single table whose content column holds the JSON
// document produced by the exercise authoring tools:
//
//	CREATE TABLE exercises (
//	    id      TEXT PRIMARY KEY,
//	    title   TEXT NOT NULL DEFAULT '',
//	    content JSONB NOT NULL
//	);
//
// The table is owned by the authoring side; this package only reads it.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingualoop/lingualoop/internal/exercise"
)

// DB is the subset of [pgxpool.Pool] the store uses. Tests substitute a fake.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store reads exercises from PostgreSQL.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

var _ exercise.Store = (*Store)(nil)

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("exercise/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("exercise/postgres: ping: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// New wraps an existing connection. The caller keeps ownership of db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Close releases the pool opened by [Open]. It is a no-op for stores built
// with [New].
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const selectContent = `SELECT content FROM exercises WHERE id = $1`

// Question implements exercise.Store.
func (s *Store) Question(ctx context.Context, exerciseID, questionID string) (exercise.Question, error) {
	var content []byte
	err := s.db.QueryRow(ctx, selectContent, exerciseID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return exercise.Question{}, fmt.Errorf("exercise %q: %w", exerciseID, exercise.ErrNotFound)
	}
	if err != nil {
		return exercise.Question{}, fmt.Errorf("exercise/postgres: get %q: %w", exerciseID, err)
	}

	questions, err := exercise.ParseContent(content)
	if err != nil {
		return exercise.Question{}, fmt.Errorf("exercise/postgres: %q: %w", exerciseID, err)
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return exercise.Question{}, fmt.Errorf("question %q of exercise %q: %w", questionID, exerciseID, exercise.ErrNotFound)
}

// Ping implements exercise.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("exercise/postgres: ping: %w", err)
	}
	return nil
}
