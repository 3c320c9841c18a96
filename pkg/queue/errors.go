package queue

import "errors"

var (
	// ErrAlreadyQueued is returned by enqueue when the session already
	// has a pending entry (at most one pending entry per session; an
	// entry already claimed into processing does not block a new one).
	ErrAlreadyQueued = errors.New("queue: session already has a pending entry")

	// ErrNotFound is returned when an entry id does not exist.
	ErrNotFound = errors.New("queue: entry not found")

	// ErrNoEntriesAvailable is returned by claim when the queue is empty.
	ErrNoEntriesAvailable = errors.New("queue: no pending entries available")

	// ErrNotPending is returned when an operation requires an entry to
	// be pending (e.g. cancel) but it has already moved on.
	ErrNotPending = errors.New("queue: entry is not pending")

	// ErrSessionNotFound is returned by the processor when a claimed
	// entry's session_id does not resolve (spec §7).
	ErrSessionNotFound = errors.New("queue: session not found")

	// ErrWorkspaceNotFound is returned by the processor when a claimed
	// entry's workspace_id does not resolve (spec §7).
	ErrWorkspaceNotFound = errors.New("queue: workspace not found")

	// ErrInvalidExecutorAction is returned by the processor when a
	// claimed entry's action payload is not valid JSON (spec §7).
	ErrInvalidExecutorAction = errors.New("queue: invalid executor action")
)
