// Package container provides the boundary between the queue processor
// and whatever actually runs a coding-agent execution (a container
// runtime, a local process, a remote sandbox). Conductor's admission
// and queue subsystem only needs to start executions and learn when
// they finish; how an execution is sandboxed is someone else's layer,
// which is why this package is a thin interface plus an in-memory
// implementation suitable for tests and a SQL-backed one (SQLService)
// that records execution_process rows.
package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/conductor/pkg/models"
)

// ErrContainerNotFound is returned when a workspace has no container.
var ErrContainerNotFound = errors.New("container: no container for workspace")

// Service is the boundary the Queue Processor calls through to run a
// claimed queue entry (spec §9 "Cyclic references": the processor
// holds a Service handle, and completion is reported back over
// OnComplete rather than a back-pointer from Service into the queue).
type Service interface {
	// EnsureContainerExists provisions (or reuses) the sandbox for a
	// workspace before an execution starts in it.
	EnsureContainerExists(ctx context.Context, workspaceID string) error

	// StartExecution begins running action inside workspaceID's
	// sandbox under executorType, returning the ExecutionProcess row
	// created to track it. The action payload is opaque to this
	// package; only the queue processor and the real executor
	// understand its shape.
	StartExecution(ctx context.Context, sessionID, workspaceID, executorType string, action json.RawMessage) (*models.ExecutionProcess, error)

	// ListRunning returns every execution currently in flight,
	// including the data needed to snapshot it as an
	// InterruptedExecution on graceful shutdown (spec §4.5).
	ListRunning(ctx context.Context) ([]models.RunningExecution, error)
}

// OnComplete is how a Service implementation reports that an
// execution finished, success or failure. The queue processor's
// OnExecutionComplete is wired to it and only clears its bookkeeping
// and logs; the originating queue entry was already marked completed
// at hand-off.
type OnComplete func(executionProcessID string, failErr error)

// InMemoryService is a fake Service suitable for tests and for running
// Conductor without a real sandboxing layer: executions "run" by
// sleeping briefly on a goroutine and then reporting completion.
type InMemoryService struct {
	mu         sync.Mutex
	containers map[string]bool
	processes  map[string]*models.ExecutionProcess
	running    map[string]models.RunningExecution
	onComplete OnComplete
	runDelay   time.Duration
}

// NewInMemoryService creates a fake Service. onComplete is invoked
// from a separate goroutine once a started execution "finishes".
func NewInMemoryService(onComplete OnComplete) *InMemoryService {
	return &InMemoryService{
		containers: make(map[string]bool),
		processes:  make(map[string]*models.ExecutionProcess),
		running:    make(map[string]models.RunningExecution),
		onComplete: onComplete,
		runDelay:   50 * time.Millisecond,
	}
}

// SetRunDelay overrides how long StartExecution waits before reporting
// completion; tests lengthen this to keep executions running for the
// duration of a test.
func (s *InMemoryService) SetRunDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runDelay = d
}

func (s *InMemoryService) EnsureContainerExists(_ context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[workspaceID] = true
	return nil
}

func (s *InMemoryService) StartExecution(_ context.Context, sessionID, workspaceID, executorType string, action json.RawMessage) (*models.ExecutionProcess, error) {
	s.mu.Lock()
	if !s.containers[workspaceID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, workspaceID)
	}
	proc := &models.ExecutionProcess{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		ExecutorType: executorType,
		Status:       models.ExecutionProcessRunning,
		StartedAt:    time.Now().UTC(),
	}
	s.processes[proc.ID] = proc
	s.running[proc.ID] = models.RunningExecution{
		ProcessID:    proc.ID,
		SessionID:    sessionID,
		WorkspaceID:  workspaceID,
		ExecutorType: executorType,
		Action:       action,
	}
	delay := s.runDelay
	s.mu.Unlock()

	go func() {
		time.Sleep(delay)
		s.finish(proc.ID, nil)
	}()

	return proc, nil
}

// ListRunning returns every execution this fake still considers in
// flight, i.e. every process StartExecution created that finish
// hasn't removed yet.
func (s *InMemoryService) ListRunning(_ context.Context) ([]models.RunningExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RunningExecution, 0, len(s.running))
	for _, r := range s.running {
		out = append(out, r)
	}
	return out, nil
}

func (s *InMemoryService) finish(processID string, failErr error) {
	s.mu.Lock()
	proc, ok := s.processes[processID]
	if ok {
		now := time.Now().UTC()
		proc.CompletedAt = &now
		if failErr != nil {
			proc.Status = models.ExecutionProcessFailed
		} else {
			proc.Status = models.ExecutionProcessCompleted
		}
	}
	delete(s.running, processID)
	onComplete := s.onComplete
	s.mu.Unlock()

	if onComplete != nil {
		onComplete(processID, failErr)
	}
}

// Fail lets a test or a real executor signal a failed execution
// directly, bypassing the simulated delay.
func (s *InMemoryService) Fail(processID string, err error) {
	s.finish(processID, err)
}
