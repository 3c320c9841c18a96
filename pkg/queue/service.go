package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/models"
)

// notifyBufferSize is the capacity of each subscriber's notify
// channel; a single buffered slot is enough since the signal only ever
// carries "something changed", not a payload, and a full buffer just
// means the processor will notice on its next drain anyway.
const notifyBufferSize = 1

// Service is the Task Queue Service: enqueue/cancel/inspect over the
// Store, plus the capacity-available broadcast used to wake the Queue
// Processor without it needing to poll tightly (spec §5).
type Service struct {
	store *Store

	mu   sync.Mutex
	subs []chan struct{}
}

// NewService wraps a Store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Enqueue adds a new entry for sessionID, rejecting a second
// outstanding entry for the same session (spec §4.3). prompt is the
// optional display-only original prompt (spec §3).
func (s *Service) Enqueue(ctx context.Context, sessionID, workspaceID, executorType string, action json.RawMessage, priority int, prompt *string) (*models.QueueEntry, error) {
	existing, err := s.store.FindPendingForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyQueued
	}

	entry, err := s.store.Create(ctx, sessionID, workspaceID, executorType, action, priority, prompt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CancelForSession cancels the session's pending entry. Returns
// ErrNotFound if the session has no pending entry.
func (s *Service) CancelForSession(ctx context.Context, sessionID string) error {
	if err := s.store.CancelForSession(ctx, sessionID); err != nil {
		return err
	}
	s.NotifyCapacityAvailable()
	return nil
}

// CancelForWorkspace cancels every pending entry for a workspace.
func (s *Service) CancelForWorkspace(ctx context.Context, workspaceID string) (int, error) {
	n, err := s.store.CancelForWorkspace(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.NotifyCapacityAvailable()
	}
	return n, nil
}

// GetSessionQueueStatus reports whether sessionID has an outstanding
// entry and, if pending, its position.
func (s *Service) GetSessionQueueStatus(ctx context.Context, sessionID string) (*models.SessionQueueStatus, error) {
	entry, err := s.store.FindPendingForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &models.SessionQueueStatus{}, nil
	}

	status := &models.SessionQueueStatus{Entry: entry}
	if entry.Status == models.QueueStatusPending {
		pos, err := s.store.GetPosition(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		status.Position = pos
	}
	return status, nil
}

// GetQueueStats returns the queue-wide snapshot for the admin surface,
// with cfg supplying the effective per-executor limit to report
// alongside each executor type's counts.
func (s *Service) GetQueueStats(ctx context.Context, cfg config.ConcurrencyConfig) (models.QueueStats, error) {
	return s.store.GetQueueDepth(ctx, cfg)
}

// ClaimNext delegates to the Store.
func (s *Service) ClaimNext(ctx context.Context) (*models.QueueEntry, error) {
	return s.store.ClaimNext(ctx)
}

// ClaimNextForExecutor delegates to the Store.
func (s *Service) ClaimNextForExecutor(ctx context.Context, executorType string) (*models.QueueEntry, error) {
	return s.store.ClaimNextForExecutor(ctx, executorType)
}

// BounceToPending delegates to the Store.
func (s *Service) BounceToPending(ctx context.Context, id string) error {
	return s.store.BounceToPending(ctx, id)
}

// Complete marks an entry completed and wakes the processor. The
// processor calls it once the entry's execution has been handed off to
// the container Service, not when that execution finishes.
func (s *Service) Complete(ctx context.Context, id string) error {
	if err := s.store.UpdateStatus(ctx, id, models.QueueStatusCompleted, nil); err != nil {
		return err
	}
	s.NotifyCapacityAvailable()
	return nil
}

// Fail marks an entry failed and wakes the processor.
func (s *Service) Fail(ctx context.Context, id string, cause error) error {
	if err := s.store.UpdateStatus(ctx, id, models.QueueStatusFailed, cause); err != nil {
		return err
	}
	s.NotifyCapacityAvailable()
	return nil
}

// ResetOrphanedProcessing delegates to the Store.
func (s *Service) ResetOrphanedProcessing(ctx context.Context) (int, error) {
	return s.store.ResetOrphanedProcessing(ctx)
}

// CleanupOldEntries delegates to the Store.
func (s *Service) CleanupOldEntries(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := nowUTC().AddDate(0, 0, -olderThanDays)
	n, err := s.store.CleanupOld(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("queue: cleanup old entries: %w", err)
	}
	return n, nil
}

// CountProcessing delegates to the Store.
func (s *Service) CountProcessing(ctx context.Context) (int, error) {
	return s.store.CountProcessing(ctx)
}

// Subscribe returns a channel the Queue Processor selects on to wake
// up as soon as capacity might be available. Delivery is best-effort:
// a subscriber that isn't currently receiving misses the notification,
// which is fine because the processor's fallback poll timer backstops
// any lost wakeup (spec §5).
func (s *Service) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, notifyBufferSize)
	s.subs = append(s.subs, ch)
	return ch
}

// NotifyCapacityAvailable broadcasts to every current subscriber
// without blocking; a subscriber whose buffered slot is already full
// simply doesn't get a second wakeup queued; it will see the change on
// its current pass anyway.
func (s *Service) NotifyCapacityAvailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
