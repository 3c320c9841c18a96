// Package workspace resolves the checked-out working tree a queued
// execution runs against.
package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/conductor/pkg/models"
)

// Store persists and resolves Workspace rows.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new workspace under sessionID.
func (s *Store) Create(ctx context.Context, sessionID, path string) (*models.Workspace, error) {
	ws := &models.Workspace{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, session_id, path, created_at) VALUES (?, ?, ?, ?)`,
		ws.ID, ws.SessionID, ws.Path, ws.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("workspace: create: %w", err)
	}
	return ws, nil
}

// GetByID fetches a workspace by id, returning ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, path, created_at FROM workspaces WHERE id = ?`, id)

	var ws models.Workspace
	if err := row.Scan(&ws.ID, &ws.SessionID, &ws.Path, &ws.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workspace: get by id: %w", err)
	}
	return &ws, nil
}
