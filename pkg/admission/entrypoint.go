package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskforge/conductor/pkg/concurrency"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/container"
	"github.com/taskforge/conductor/pkg/queue"
)

// EntryPoint is the single admission path: check concurrency, then
// either start the execution immediately or fall back to the queue.
//
//	check := Admission Checker
//	switch check(stats, cfg, executorType) {
//	case Allowed:
//	    container.StartExecution(...)
//	case GlobalLimitExceeded, AgentLimitExceeded:
//	    if cfg.Queue.Enabled { queue.Enqueue(...) } else { reject }
//	}
type EntryPoint struct {
	configs    *config.Store
	stats      *concurrency.StatsSource
	containers container.Service
	queueSvc   *queue.Service
}

// NewEntryPoint wires an EntryPoint.
func NewEntryPoint(configs *config.Store, stats *concurrency.StatsSource, containers container.Service, queueSvc *queue.Service) *EntryPoint {
	return &EntryPoint{configs: configs, stats: stats, containers: containers, queueSvc: queueSvc}
}

// Submit is the Admission Entry Point's sole operation: decide whether
// sessionID's executorType execution starts now or is queued, for a
// single priority-0 submission from the API surface. prompt is the
// optional display-only original prompt carried on a queued entry
// (spec §3); it has no effect on an immediately-started execution.
func (e *EntryPoint) Submit(ctx context.Context, sessionID, workspaceID, executorType string, action json.RawMessage, prompt *string) (*Outcome, error) {
	return e.submit(ctx, sessionID, workspaceID, executorType, action, 0, prompt)
}

func (e *EntryPoint) submit(ctx context.Context, sessionID, workspaceID, executorType string, action json.RawMessage, priority int, prompt *string) (*Outcome, error) {
	cfg := e.configs.Get()

	snapshot, err := e.stats.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("admission: stats snapshot: %w", err)
	}

	result := concurrency.CheckCanStartExecution(cfg.Concurrency, executorType,
		concurrency.ForExecutor(snapshot, executorType))

	if result.Kind == concurrency.Allowed {
		if err := e.containers.EnsureContainerExists(ctx, workspaceID); err != nil {
			return nil, fmt.Errorf("admission: ensure container exists: %w", err)
		}
		proc, err := e.containers.StartExecution(ctx, sessionID, workspaceID, executorType, action)
		if err != nil {
			return nil, fmt.Errorf("admission: start execution: %w", err)
		}
		return &Outcome{Started: proc}, nil
	}

	if !cfg.Concurrency.Queue.Enabled {
		return nil, newLimitReachedError(result)
	}

	entry, err := e.queueSvc.Enqueue(ctx, sessionID, workspaceID, executorType, action, priority, prompt)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			return nil, ErrAlreadyQueued
		}
		return nil, fmt.Errorf("admission: enqueue: %w", err)
	}

	status, err := e.queueSvc.GetSessionQueueStatus(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("admission: get queue position: %w", err)
	}
	position := 1
	if status.Position != nil {
		position = status.Position.Position
	}

	return &Outcome{Queued: &QueuedOutcome{Entry: entry, Position: position}}, nil
}
