package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/conductor/pkg/models"
)

// SQLService is the production Service: it persists one
// execution_process row per started execution so the Concurrency
// Stats Source (spec §4.1) has a table to query, and keeps the opaque
// action payload for each still-running process in memory so
// ListRunning can snapshot it at shutdown (spec §4.5). Actually
// supervising a sandbox process is out of this subsystem's scope
// (spec §1); RunFunc stands in for whatever real executor the
// container runtime would invoke.
type SQLService struct {
	db         *sql.DB
	run        RunFunc
	onComplete OnComplete

	mu      sync.Mutex
	running map[string]models.RunningExecution
}

// RunFunc performs the actual work of a started execution and returns
// when it finishes. The default used by NewSQLService merely sleeps;
// a real deployment supplies one that drives the container runtime.
type RunFunc func(ctx context.Context, proc models.RunningExecution) error

// NewSQLService wires a SQLService. If run is nil, executions "run" by
// sleeping 50ms, matching InMemoryService's behavior but with durable
// bookkeeping.
func NewSQLService(db *sql.DB, run RunFunc, onComplete OnComplete) *SQLService {
	if run == nil {
		run = func(ctx context.Context, _ models.RunningExecution) error {
			select {
			case <-time.After(50 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return &SQLService{db: db, run: run, onComplete: onComplete, running: make(map[string]models.RunningExecution)}
}

// EnsureContainerExists is a no-op placeholder: provisioning a real
// sandbox is the container runtime's job, out of this subsystem's
// scope (spec §1). It exists so callers have a consistent hook to
// call before StartExecution regardless of which Service backs them.
func (s *SQLService) EnsureContainerExists(_ context.Context, _ string) error {
	return nil
}

// StartExecution inserts a running execution_process row, then runs
// the execution on its own goroutine, updating the row and invoking
// onComplete when it finishes.
func (s *SQLService) StartExecution(ctx context.Context, sessionID, workspaceID, executorType string, action json.RawMessage) (*models.ExecutionProcess, error) {
	proc := &models.ExecutionProcess{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		ExecutorType: executorType,
		Status:       models.ExecutionProcessRunning,
		StartedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_process (id, session_id, executor_type, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		proc.ID, proc.SessionID, proc.ExecutorType, string(proc.Status), proc.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("container: start execution: insert: %w", err)
	}

	re := models.RunningExecution{
		ProcessID:    proc.ID,
		SessionID:    sessionID,
		WorkspaceID:  workspaceID,
		ExecutorType: executorType,
		Action:       action,
	}
	s.mu.Lock()
	s.running[proc.ID] = re
	s.mu.Unlock()

	go s.supervise(re)

	return proc, nil
}

func (s *SQLService) supervise(re models.RunningExecution) {
	runErr := s.run(context.Background(), re)

	status := models.ExecutionProcessCompleted
	if runErr != nil {
		status = models.ExecutionProcessFailed
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(context.Background(),
		`UPDATE execution_process SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), now, re.ProcessID); err != nil {
		// The process row failing to update doesn't block reporting
		// completion upstream; the update is not retried, so the row
		// stays running and stats reads keep counting it.
		runErr = errors.Join(runErr, fmt.Errorf("container: mark process %s: %w", re.ProcessID, err))
	}

	s.mu.Lock()
	delete(s.running, re.ProcessID)
	onComplete := s.onComplete
	s.mu.Unlock()

	if onComplete != nil {
		onComplete(re.ProcessID, runErr)
	}
}

// ListRunning returns every execution this Service still has an
// in-memory record of as running.
func (s *SQLService) ListRunning(_ context.Context) ([]models.RunningExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RunningExecution, 0, len(s.running))
	for _, re := range s.running {
		out = append(out, re)
	}
	return out, nil
}
