package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskforge/conductor/pkg/concurrency"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/container"
	"github.com/taskforge/conductor/pkg/models"
	"github.com/taskforge/conductor/pkg/session"
	"github.com/taskforge/conductor/pkg/workspace"
)

// Processor is the Queue Processor: a background loop that drains
// pending entries as concurrency slots free up (spec §5).
//
// Its main loop selects over three sources, same shape regardless of
// which one fires: a capacity-available notification, a fallback poll
// timer (the backstop for a notification lost because no one was
// listening when it fired), and a shutdown signal.
type Processor struct {
	service    *Service
	stats      *concurrency.StatsSource
	containers container.Service
	configs    *config.Store
	sessions   *session.Store
	workspaces *workspace.Store
	logger     *slog.Logger

	shutdown chan struct{}
	done     chan struct{}

	// entryByProcess maps a running ExecutionProcess id back to the
	// queue entry that started it, since the container Service only
	// knows its own process id in OnExecutionComplete (spec §9
	// "Cyclic references": two independent handles plus this lookup,
	// never a back-pointer from container into queue).
	mu             sync.Mutex
	entryByProcess map[string]string
}

// NewProcessor wires a Processor. configs supplies the live
// ConcurrencyConfig/QueueBehaviorConfig snapshot on every pass, so a
// hot-reloaded limit takes effect without restarting the processor.
// sessions and workspaces resolve a claimed entry's identifiers before
// it is started (spec §7 SessionNotFound/WorkspaceNotFound); either may
// be nil to skip that check, which test callers that never populate
// those tables rely on.
func NewProcessor(service *Service, stats *concurrency.StatsSource, containers container.Service, configs *config.Store, sessions *session.Store, workspaces *workspace.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		service:        service,
		stats:          stats,
		containers:     containers,
		configs:        configs,
		sessions:       sessions,
		workspaces:     workspaces,
		logger:         logger,
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		entryByProcess: make(map[string]string),
	}
}

// Run blocks draining the queue until ctx is cancelled or Stop is
// called. It should be run on its own goroutine.
func (p *Processor) Run(ctx context.Context) {
	defer close(p.done)

	notify := p.service.Subscribe()
	for {
		cfg := p.configs.Get()
		fallback := time.NewTimer(cfg.Processor.FallbackPollInterval)

		select {
		case <-ctx.Done():
			fallback.Stop()
			return
		case <-p.shutdown:
			fallback.Stop()
			return
		case <-notify:
			fallback.Stop()
		case <-fallback.C:
		}

		p.drain(ctx)
	}
}

// Stop signals Run to exit and blocks until it has.
func (p *Processor) Stop() {
	close(p.shutdown)
	<-p.done
}

// drain calls tryProcessNext repeatedly until the queue reports empty
// or every remaining entry is blocked by a concurrency limit, so a
// single wakeup processes as many ready entries as capacity allows
// instead of just one.
func (p *Processor) drain(ctx context.Context) {
	for {
		processed, err := p.tryProcessNext(ctx)
		if err != nil {
			if errors.Is(err, ErrNoEntriesAvailable) {
				return
			}
			p.logger.Error("queue processor: failed to process next entry", "error", err)
			return
		}
		if !processed {
			return
		}
	}
}

// tryProcessNext claims and starts a single entry, or reports that
// none could be started right now. Returns (false, nil) when the
// global limit is already exhausted or a claimed entry had to be
// bounced back to pending by the per-agent re-check — both are normal
// "nothing to do yet" outcomes, not errors.
func (p *Processor) tryProcessNext(ctx context.Context) (bool, error) {
	cfg := p.configs.Get()
	if !cfg.Concurrency.Queue.Enabled {
		return false, ErrNoEntriesAvailable
	}

	snapshot, err := p.stats.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("queue processor: stats snapshot: %w", err)
	}
	if cfg.Concurrency.GlobalLimit.Exceeded(uint32(snapshot.GlobalRunning)) {
		return false, nil
	}

	entry, err := p.service.ClaimNext(ctx)
	if err != nil {
		return false, err
	}

	// Re-check the per-agent limit against the same stats snapshot
	// used for the global check above: the claim moved a row to
	// processing, but did not change how many of that executor type
	// are actually running right now (spec §9 Open Question, "bounce
	// to pending" strategy — claims are cheap and reversible).
	result := concurrency.CheckCanStartExecution(cfg.Concurrency, entry.ExecutorType,
		concurrency.ForExecutor(snapshot, entry.ExecutorType))
	if result.Kind != concurrency.Allowed {
		if err := p.service.BounceToPending(ctx, entry.ID); err != nil {
			return false, fmt.Errorf("queue processor: bounce to pending: %w", err)
		}
		p.logger.Debug("queue processor: bounced entry back to pending",
			"entry_id", entry.ID, "executor_type", entry.ExecutorType, "reason", result.String())
		if d := cfg.Processor.ClaimBackoff; d > 0 {
			backoff := time.NewTimer(d)
			select {
			case <-backoff.C:
			case <-ctx.Done():
				backoff.Stop()
			case <-p.shutdown:
				backoff.Stop()
			}
		}
		return false, nil
	}

	if err := p.processEntry(ctx, entry); err != nil {
		p.logger.Error("queue processor: entry failed", "entry_id", entry.ID, "error", err)
		if failErr := p.service.Fail(ctx, entry.ID, err); failErr != nil {
			p.logger.Error("queue processor: failed to mark entry failed", "entry_id", entry.ID, "error", failErr)
		}
		return true, nil
	}

	// Admission succeeded and the execution has been handed off to the
	// container Service; the entry's job is done (spec §4.4 step 9).
	// Downstream completion of the execution-process itself is tracked
	// separately, in execution_process, not on this row.
	if err := p.service.Complete(ctx, entry.ID); err != nil {
		p.logger.Error("queue processor: failed to mark entry completed", "entry_id", entry.ID, "error", err)
	}

	return true, nil
}

// processEntry starts the claimed entry's execution. The execution
// itself runs to completion asynchronously, tracked via
// execution_process rather than through this entry (spec §4.4 step 9).
func (p *Processor) processEntry(ctx context.Context, entry *models.QueueEntry) error {
	if !json.Valid(entry.Action) {
		return fmt.Errorf("%w: entry %s", ErrInvalidExecutorAction, entry.ID)
	}

	if p.sessions != nil {
		if _, err := p.sessions.GetByID(ctx, entry.SessionID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrSessionNotFound, entry.SessionID)
			}
			return fmt.Errorf("resolve session: %w", err)
		}
	}
	if p.workspaces != nil {
		if _, err := p.workspaces.GetByID(ctx, entry.WorkspaceID); err != nil {
			if errors.Is(err, workspace.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, entry.WorkspaceID)
			}
			return fmt.Errorf("resolve workspace: %w", err)
		}
	}

	if err := p.containers.EnsureContainerExists(ctx, entry.WorkspaceID); err != nil {
		return fmt.Errorf("ensure container exists: %w", err)
	}

	proc, err := p.containers.StartExecution(ctx, entry.SessionID, entry.WorkspaceID, entry.ExecutorType, entry.Action)
	if err != nil {
		return fmt.Errorf("start execution: %w", err)
	}

	p.mu.Lock()
	p.entryByProcess[proc.ID] = entry.ID
	p.mu.Unlock()

	return nil
}

// OnExecutionComplete is the container Service's completion callback,
// wired up by whoever constructs both (cmd/conductor's wiring code).
// The queue entry that admitted executionProcessID was already marked
// completed the moment it was handed off (spec §4.4 step 9); this only
// clears the bookkeeping that let OnExecutionComplete find its way back
// to that entry and logs the outcome. execution_process itself already
// carries the real completion status, which is all the Concurrency
// Stats Source reads.
func (p *Processor) OnExecutionComplete(executionProcessID string, execErr error) {
	p.mu.Lock()
	entryID, ok := p.entryByProcess[executionProcessID]
	if ok {
		delete(p.entryByProcess, executionProcessID)
	}
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("queue processor: completion for unknown execution process", "execution_process_id", executionProcessID)
		return
	}

	if execErr != nil {
		p.logger.Warn("queue processor: execution finished with error", "entry_id", entryID, "execution_process_id", executionProcessID, "error", execErr)
		return
	}
	p.logger.Debug("queue processor: execution finished", "entry_id", entryID, "execution_process_id", executionProcessID)
}
