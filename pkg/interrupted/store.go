// Package interrupted implements the Interrupted-Execution Store and
// startup recovery: the registry of executions that were still
// running when the process crashed or restarted (spec §5).
package interrupted

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/conductor/pkg/models"
)

// ErrNotFound is returned when an interrupted-execution id doesn't exist.
var ErrNotFound = errors.New("interrupted: not found")

// ErrAlreadyResumed is returned by MarkResumed when called twice on
// the same row: resumed is a monotonic false→true transition and
// never reverts (spec §5 invariant).
var ErrAlreadyResumed = errors.New("interrupted: already resumed")

// Store persists interrupted_executions rows.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create records that executionProcessID was interrupted mid-run.
// runReason is almost always models.RunReasonCodingAgent; agentSessionID
// is the executor's own session handle when it reports one (spec §3).
func (s *Store) Create(ctx context.Context, executionProcessID, sessionID, workspaceID, executorType string, originalAction []byte, runReason string, agentSessionID *string) (*models.InterruptedExecution, error) {
	now := time.Now().UTC()
	rec := &models.InterruptedExecution{
		ID:                 uuid.NewString(),
		ExecutionProcessID: executionProcessID,
		SessionID:          sessionID,
		WorkspaceID:        workspaceID,
		ExecutorType:       executorType,
		OriginalAction:     originalAction,
		RunReason:          runReason,
		AgentSessionID:     agentSessionID,
		InterruptedAt:      now,
		Resumed:            false,
		CreatedAt:          now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interrupted_executions
		 (id, execution_process_id, session_id, workspace_id, executor_type, original_action, run_reason, agent_session_id, interrupted_at, resumed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.ID, rec.ExecutionProcessID, rec.SessionID, rec.WorkspaceID, rec.ExecutorType,
		[]byte(rec.OriginalAction), rec.RunReason, rec.AgentSessionID, rec.InterruptedAt, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("interrupted: create: %w", err)
	}
	return rec, nil
}

// FindByID fetches a single record.
func (s *Store) FindByID(ctx context.Context, id string) (*models.InterruptedExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM interrupted_executions WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("interrupted: find by id: %w", err)
	}
	return rec, nil
}

// FindByExecutionProcessID looks up the record for a given execution
// process, used when an executor reports a crash mid-run.
func (s *Store) FindByExecutionProcessID(ctx context.Context, executionProcessID string) (*models.InterruptedExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM interrupted_executions WHERE execution_process_id = ?`, executionProcessID)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("interrupted: find by execution process id: %w", err)
	}
	return rec, nil
}

// FindNotResumed returns every record not yet resumed, oldest first —
// the set startup recovery walks through (spec §5).
func (s *Store) FindNotResumed(ctx context.Context) ([]*models.InterruptedExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM interrupted_executions WHERE resumed = 0 ORDER BY interrupted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("interrupted: find not resumed: %w", err)
	}
	defer rows.Close()

	var out []*models.InterruptedExecution
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("interrupted: find not resumed: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interrupted: find not resumed: iterate: %w", err)
	}
	return out, nil
}

// MarkResumed flips resumed false→true. Returns ErrAlreadyResumed if
// called a second time, and ErrNotFound if the id doesn't exist.
func (s *Store) MarkResumed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE interrupted_executions SET resumed = 1, resumed_at = ? WHERE id = ? AND resumed = 0`,
		now, id)
	if err != nil {
		return fmt.Errorf("interrupted: mark resumed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("interrupted: mark resumed: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyResumed
}

// MarkResumedForSession resumes every not-yet-resumed record for a
// session, used when a session is abandoned rather than retried
// individually.
func (s *Store) MarkResumedForSession(ctx context.Context, sessionID string) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE interrupted_executions SET resumed = 1, resumed_at = ? WHERE session_id = ? AND resumed = 0`,
		now, sessionID)
	if err != nil {
		return 0, fmt.Errorf("interrupted: mark resumed for session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("interrupted: mark resumed for session: %w", err)
	}
	return int(n), nil
}

// CleanupOld deletes resumed records older than olderThan (spec §6 retention).
func (s *Store) CleanupOld(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM interrupted_executions WHERE resumed = 1 AND created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("interrupted: cleanup old: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("interrupted: cleanup old: %w", err)
	}
	return int(n), nil
}

const columns = `id, execution_process_id, session_id, workspace_id, executor_type, original_action, run_reason, agent_session_id, interrupted_at, resumed, resumed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*models.InterruptedExecution, error) {
	var rec models.InterruptedExecution
	var action []byte
	var resumed bool
	var agentSessionID sql.NullString
	var resumedAt sql.NullTime

	if err := row.Scan(&rec.ID, &rec.ExecutionProcessID, &rec.SessionID, &rec.WorkspaceID, &rec.ExecutorType,
		&action, &rec.RunReason, &agentSessionID, &rec.InterruptedAt, &resumed, &resumedAt, &rec.CreatedAt); err != nil {
		return nil, err
	}

	rec.OriginalAction = action
	rec.Resumed = resumed
	if agentSessionID.Valid {
		rec.AgentSessionID = &agentSessionID.String
	}
	if resumedAt.Valid {
		rec.ResumedAt = &resumedAt.Time
	}
	return &rec, nil
}
