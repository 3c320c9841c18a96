package interrupted

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskforge/conductor/pkg/container"
	"github.com/taskforge/conductor/pkg/models"
)

// Snapshotter records every currently-running coding-agent execution
// as an InterruptedExecution row at graceful shutdown (spec §4.5), so
// startup Recovery has something to resume.
type Snapshotter struct {
	store      *Store
	containers container.Service
	logger     *slog.Logger
}

// NewSnapshotter wires a Snapshotter.
func NewSnapshotter(store *Store, containers container.Service, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{store: store, containers: containers, logger: logger}
}

// Run lists every running execution and writes one interrupted_executions
// row per entry. A single entry failing to write is logged and does not
// stop the rest from being recorded, so a shutdown always makes best
// effort progress on every execution it can still see.
func (sn *Snapshotter) Run(ctx context.Context) error {
	running, err := sn.containers.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: list running: %w", err)
	}
	if len(running) == 0 {
		return nil
	}

	sn.logger.Info("recording interrupted executions before shutdown", "count", len(running))

	var failures int
	for _, re := range running {
		if _, err := sn.store.Create(ctx, re.ProcessID, re.SessionID, re.WorkspaceID, re.ExecutorType,
			re.Action, models.RunReasonCodingAgent, re.AgentSessionID); err != nil {
			sn.logger.Error("failed to record interrupted execution", "execution_process_id", re.ProcessID, "error", err)
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("snapshot: failed to record %d of %d interrupted executions", failures, len(running))
	}
	return nil
}
