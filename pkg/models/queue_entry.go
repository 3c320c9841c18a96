// Package models holds the plain data types shared across the
// concurrency, queue, interrupted-execution, and admission packages.
package models

import (
	"encoding/json"
	"time"
)

// QueueEntryStatus is the lifecycle state of a task_queue row.
type QueueEntryStatus string

const (
	QueueStatusPending    QueueEntryStatus = "pending"
	QueueStatusProcessing QueueEntryStatus = "processing"
	QueueStatusCompleted  QueueEntryStatus = "completed"
	QueueStatusFailed     QueueEntryStatus = "failed"
	QueueStatusCancelled  QueueEntryStatus = "cancelled"
)

// Terminal reports whether the status is one the cleanup sweep will
// eventually reap (completed_at is set for all three).
func (s QueueEntryStatus) Terminal() bool {
	switch s {
	case QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled:
		return true
	default:
		return false
	}
}

// QueueEntry is a single queued-or-processed execution request.
type QueueEntry struct {
	ID           string
	SessionID    string
	WorkspaceID  string
	ExecutorType string
	Action       json.RawMessage
	Prompt       *string
	Status       QueueEntryStatus
	Priority     int
	QueuedAt     time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Error        *string
	UpdatedAt    time.Time
}

// QueuePosition describes where a session's pending entry sits among
// all pending entries.
type QueuePosition struct {
	EntryID      string
	Position     int // 1-based: AheadOfTotal + 1
	AheadOfTotal int // pending entries strictly ahead by (priority, queued_at)
}

// SessionQueueStatus is the response to "is this session queued?".
type SessionQueueStatus struct {
	Entry    *QueueEntry
	Position *QueuePosition
}

// QueueStats summarizes the whole queue for the admin surface.
type QueueStats struct {
	TotalPending           int
	TotalProcessing        int
	EstimatedWaitMinutes   int
	ByExecutorType         map[string]ExecutorQueueStats
}

// ExecutorQueueStats narrows QueueStats to a single executor type.
type ExecutorQueueStats struct {
	Pending    int
	Processing int
	// Limit is the effective concurrency ceiling for this executor
	// type (spec §3's agent_limits[...] ?? global_limit rule), nil
	// when unlimited.
	Limit *uint32
}
