// Package session resolves the sessions a queued execution belongs
// to. The full session lifecycle (chat history, agent chains, alert
// ingestion) lives outside this subsystem; this package only provides
// the identity lookups the Queue Processor needs.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/conductor/pkg/models"
)

// Store persists and resolves Session rows.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new session under a freshly generated id. Returns
// the created session.
func (s *Store) Create(ctx context.Context, title string) (*models.Session, error) {
	sess := &models.Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)`,
		sess.ID, sess.Title, sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return sess, nil
}

// GetByID fetches a session by id, returning ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM sessions WHERE id = ?`, id)

	var sess models.Session
	if err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: get by id: %w", err)
	}
	return &sess, nil
}
