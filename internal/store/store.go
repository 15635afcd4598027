// Package store is the relational persistence layer behind the realtime
// subsystem. Every method is a single point query or a single transaction;
// nothing is cached between calls.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nikhil/taskhub/internal/config"
	"github.com/nikhil/taskhub/internal/models"
)

// Store implements the persistence operations over database/sql.
type Store struct {
	db         *sql.DB
	lockClause string
	now        func() time.Time
}

// New wraps an open database. driver selects dialect-specific clauses.
func New(db *sql.DB, driver string) *Store {
	s := &Store{db: db, now: time.Now}
	if driver == config.DriverMySQL {
		s.lockClause = " FOR UPDATE"
	}
	return s
}

// WithClock replaces the time source. Timestamps are unix milliseconds.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) timestamp() int64 {
	return s.now().UTC().UnixMilli()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// CreateUser inserts a user row. Users normally come from the credential
// collaborator; this exists for seeding.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.CreatedAt = s.timestamp()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, avatar, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.Email, u.Avatar, u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = result.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("user id: %w", err)
	}
	return u, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, avatar, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.Avatar, &u.CreatedAt)
	if err != nil {
		return models.User{}, notFound(err, "user")
	}
	return u, nil
}
