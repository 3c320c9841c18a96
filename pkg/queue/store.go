// Package queue implements the durable task queue: atomic claim
// semantics over SQLite, the service layer wrapping it with
// enqueue/cancel/notify, and the background processor that drains it.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/models"
)

// Store is the persistence layer over task_queue. Claim operations use
// BEGIN IMMEDIATE to take SQLite's write lock up front, so the
// "pick the next row, then update it" sequence below (a subquery
// inside one UPDATE ... RETURNING) is atomic against concurrent
// claimers:
//
//	BEGIN IMMEDIATE;
//	UPDATE task_queue SET status=?, started_at=?, updated_at=?
//	  WHERE id = (SELECT id FROM task_queue WHERE status=?
//	              ORDER BY priority ASC, queued_at ASC LIMIT 1)
//	  RETURNING *;
//	COMMIT;
//
// A plain transaction (BEGIN DEFERRED, SQLite's default) would let two
// claimers both open read transactions, both evaluate the same
// SELECT, and then serialize only at the UPDATE — by then one of them
// has already built a QueueEntry around a row the other is about to
// steal. BEGIN IMMEDIATE takes the write lock before the SELECT runs.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new pending entry. prompt is the optional
// display-only original prompt (spec §3); it is never interpreted by
// this package, only stored and returned.
func (s *Store) Create(ctx context.Context, sessionID, workspaceID, executorType string, action json.RawMessage, priority int, prompt *string) (*models.QueueEntry, error) {
	now := time.Now().UTC()
	entry := &models.QueueEntry{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		WorkspaceID:  workspaceID,
		ExecutorType: executorType,
		Action:       action,
		Prompt:       prompt,
		Status:       models.QueueStatusPending,
		Priority:     priority,
		QueuedAt:     now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_queue (id, session_id, workspace_id, executor_type, action, prompt, status, priority, queued_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.WorkspaceID, entry.ExecutorType, []byte(entry.Action), entry.Prompt,
		string(entry.Status), entry.Priority, entry.QueuedAt, entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("queue: create: %w", err)
	}
	return entry, nil
}

// FindByID fetches a single entry by id, returning ErrNotFound if absent.
func (s *Store) FindByID(ctx context.Context, id string) (*models.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM task_queue WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: find by id: %w", err)
	}
	return entry, nil
}

// FindPendingForSession returns the oldest (by queued_at) pending
// entry for sessionID, per spec §4.2 — a claim (which moves a row to
// processing) or a cancel stops it from being returned, per spec §8's
// round-trip law.
func (s *Store) FindPendingForSession(ctx context.Context, sessionID string) (*models.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM task_queue
		 WHERE session_id = ? AND status = ?
		 ORDER BY queued_at ASC LIMIT 1`,
		sessionID, string(models.QueueStatusPending))

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: find pending for session: %w", err)
	}
	return entry, nil
}

// ClaimNext atomically moves the highest-priority, oldest pending
// entry to processing and returns it. Returns ErrNoEntriesAvailable if
// the queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (*models.QueueEntry, error) {
	return s.claim(ctx, "")
}

// ClaimNextForExecutor is ClaimNext narrowed to a single executor
// type. The Processor does not call it: it claims with ClaimNext and
// bounces an entry whose per-agent limit is exhausted back to pending.
func (s *Store) ClaimNextForExecutor(ctx context.Context, executorType string) (*models.QueueEntry, error) {
	return s.claim(ctx, executorType)
}

func (s *Store) claim(ctx context.Context, executorType string) (*models.QueueEntry, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("queue: claim: begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	now := time.Now().UTC()
	var row *sql.Row
	if executorType == "" {
		row = conn.QueryRowContext(ctx,
			`UPDATE task_queue SET status = ?, started_at = ?, updated_at = ?
			 WHERE id = (SELECT id FROM task_queue WHERE status = ?
			             ORDER BY priority ASC, queued_at ASC LIMIT 1)
			 RETURNING `+entryColumns,
			string(models.QueueStatusProcessing), now, now, string(models.QueueStatusPending))
	} else {
		row = conn.QueryRowContext(ctx,
			`UPDATE task_queue SET status = ?, started_at = ?, updated_at = ?
			 WHERE id = (SELECT id FROM task_queue WHERE status = ? AND executor_type = ?
			             ORDER BY priority ASC, queued_at ASC LIMIT 1)
			 RETURNING `+entryColumns,
			string(models.QueueStatusProcessing), now, now, string(models.QueueStatusPending), executorType)
	}

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, cerr := conn.ExecContext(ctx, "COMMIT"); cerr != nil {
			return nil, fmt.Errorf("queue: claim: commit empty claim: %w", cerr)
		}
		committed = true
		return nil, ErrNoEntriesAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("queue: claim: commit: %w", err)
	}
	committed = true
	return entry, nil
}

// UpdateStatus transitions an entry's status. Used both for terminal
// transitions (completed/failed/cancelled) and for bouncing a claimed
// entry back to pending when the per-agent re-check in the processor
// finds the agent limit already exhausted.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.QueueEntryStatus, execErr error) error {
	now := time.Now().UTC()
	var errMsg *string
	if execErr != nil {
		m := execErr.Error()
		errMsg = &m
	}

	var completedAt *time.Time
	if status.Terminal() {
		completedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE task_queue SET status = ?, error = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("queue: update status: %w", err)
	}
	return requireOneRowAffected(res)
}

// BounceToPending reverts a just-claimed entry back to pending,
// clearing started_at, without touching completed_at or priority. Used
// when the per-agent limit check fails after a successful claim (spec
// §9 Open Question — "retry-claim" strategy).
func (s *Store) BounceToPending(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_queue SET status = ?, started_at = NULL, updated_at = ? WHERE id = ?`,
		string(models.QueueStatusPending), now, id)
	if err != nil {
		return fmt.Errorf("queue: bounce to pending: %w", err)
	}
	return requireOneRowAffected(res)
}

// Cancel cancels a pending entry. Returns ErrNotPending if the entry
// has already been claimed or finished.
func (s *Store) Cancel(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_queue SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.QueueStatusCancelled), now, now, id, string(models.QueueStatusPending))
	if err != nil {
		return fmt.Errorf("queue: cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("queue: cancel: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// CancelForSession cancels the session's pending entry. Returns
// ErrNotFound if the session has no pending entry, so a second call
// after a successful cancel fails rather than being a no-op.
func (s *Store) CancelForSession(ctx context.Context, sessionID string) error {
	entry, err := s.FindPendingForSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if entry == nil || entry.Status != models.QueueStatusPending {
		return ErrNotFound
	}
	return s.Cancel(ctx, entry.ID)
}

// CancelForWorkspace cancels every pending entry queued against a
// workspace, e.g. when the workspace is deleted out from under it.
func (s *Store) CancelForWorkspace(ctx context.Context, workspaceID string) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_queue SET status = ?, completed_at = ?, updated_at = ? WHERE workspace_id = ? AND status = ?`,
		string(models.QueueStatusCancelled), now, now, workspaceID, string(models.QueueStatusPending))
	if err != nil {
		return 0, fmt.Errorf("queue: cancel for workspace: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queue: cancel for workspace: %w", err)
	}
	return int(n), nil
}

// GetPosition reports where entryID sits among pending entries ahead
// of it by (priority, queued_at).
func (s *Store) GetPosition(ctx context.Context, entryID string) (*models.QueuePosition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT priority, queued_at FROM task_queue WHERE id = ? AND status = ?`,
		entryID, string(models.QueueStatusPending))

	var priority int
	var queuedAt time.Time
	if err := row.Scan(&priority, &queuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("queue: get position: %w", err)
	}

	var ahead int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_queue WHERE status = ?
		 AND (priority < ? OR (priority = ? AND queued_at < ?))`,
		string(models.QueueStatusPending), priority, priority, queuedAt).Scan(&ahead)
	if err != nil {
		return nil, fmt.Errorf("queue: get position: count ahead: %w", err)
	}

	return &models.QueuePosition{EntryID: entryID, Position: ahead + 1, AheadOfTotal: ahead}, nil
}

// GetQueueDepth returns queue-wide pending/processing stats grouped by
// executor type, plus the estimated wait. cfg supplies the effective
// per-executor limit (spec §3's agent_limits[...] ?? global_limit
// rule) reported alongside each executor type's counts.
func (s *Store) GetQueueDepth(ctx context.Context, cfg config.ConcurrencyConfig) (models.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT executor_type, status, COUNT(*) FROM task_queue
		 WHERE status IN (?, ?) GROUP BY executor_type, status`,
		string(models.QueueStatusPending), string(models.QueueStatusProcessing))
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("queue: get queue depth: %w", err)
	}
	defer rows.Close()

	stats := models.QueueStats{ByExecutorType: make(map[string]models.ExecutorQueueStats)}
	for rows.Next() {
		var executorType, status string
		var count int
		if err := rows.Scan(&executorType, &status, &count); err != nil {
			return models.QueueStats{}, fmt.Errorf("queue: get queue depth: scan: %w", err)
		}
		entry := stats.ByExecutorType[executorType]
		switch models.QueueEntryStatus(status) {
		case models.QueueStatusPending:
			entry.Pending = count
			stats.TotalPending += count
		case models.QueueStatusProcessing:
			entry.Processing = count
			stats.TotalProcessing += count
		}
		stats.ByExecutorType[executorType] = entry
	}
	if err := rows.Err(); err != nil {
		return models.QueueStats{}, fmt.Errorf("queue: get queue depth: iterate: %w", err)
	}

	for executorType, entry := range stats.ByExecutorType {
		if n, ok := cfg.LimitForAgent(executorType).Value(); ok {
			entry.Limit = &n
			stats.ByExecutorType[executorType] = entry
		}
	}

	if stats.TotalPending > 0 {
		stats.EstimatedWaitMinutes = stats.TotalPending * 5
	}

	return stats, nil
}

// CountProcessing returns the number of entries currently processing.
func (s *Store) CountProcessing(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_queue WHERE status = ?`, string(models.QueueStatusProcessing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue: count processing: %w", err)
	}
	return n, nil
}

// ResetOrphanedProcessing reverts every processing entry back to
// pending, run once at startup before resuming interrupted executions
// (spec §5): any entry still marked processing survived a crash with
// no executor left actually running it.
func (s *Store) ResetOrphanedProcessing(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_queue SET status = ?, started_at = NULL, updated_at = ? WHERE status = ?`,
		string(models.QueueStatusPending), now, string(models.QueueStatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("queue: reset orphaned processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queue: reset orphaned processing: %w", err)
	}
	return int(n), nil
}

// CleanupOld deletes terminal entries whose completed_at is older than
// olderThan (spec §6 retention).
func (s *Store) CleanupOld(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_queue WHERE status IN (?, ?, ?) AND completed_at < ?`,
		string(models.QueueStatusCompleted), string(models.QueueStatusFailed), string(models.QueueStatusCancelled), olderThan)
	if err != nil {
		return 0, fmt.Errorf("queue: cleanup old: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queue: cleanup old: %w", err)
	}
	return int(n), nil
}

// CountByStatus is a small diagnostic helper returning the number of
// entries in status.
func (s *Store) CountByStatus(ctx context.Context, status models.QueueEntryStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_queue WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue: count by status: %w", err)
	}
	return n, nil
}

const entryColumns = `id, session_id, workspace_id, executor_type, action, prompt, status, priority, queued_at, started_at, completed_at, error, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	var action []byte
	var status string
	var prompt sql.NullString
	var startedAt, completedAt sql.NullTime
	var errMsg sql.NullString

	if err := row.Scan(&e.ID, &e.SessionID, &e.WorkspaceID, &e.ExecutorType, &action, &prompt, &status,
		&e.Priority, &e.QueuedAt, &startedAt, &completedAt, &errMsg, &e.UpdatedAt); err != nil {
		return nil, err
	}

	e.Action = json.RawMessage(action)
	e.Status = models.QueueEntryStatus(status)
	if prompt.Valid {
		e.Prompt = &prompt.String
	}
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		e.Error = &errMsg.String
	}
	return &e, nil
}

func requireOneRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
