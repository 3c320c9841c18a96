package models

import (
	"encoding/json"
	"time"
)

// ExecutionProcessStatus is the lifecycle state of a running executor.
type ExecutionProcessStatus string

const (
	ExecutionProcessRunning   ExecutionProcessStatus = "running"
	ExecutionProcessCompleted ExecutionProcessStatus = "completed"
	ExecutionProcessFailed    ExecutionProcessStatus = "failed"
)

// ExecutionProcess is a running (or finished) coding-agent execution.
// The Admission Checker counts rows with Status == running, grouped by
// ExecutorType, to compute ConcurrencyStats (spec §3, §4.1).
type ExecutionProcess struct {
	ID           string
	SessionID    string
	ExecutorType string
	Status       ExecutionProcessStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// RunningExecution is the Container Service's view of one
// currently-running execution, returned by ListRunning so the
// Interrupted-Execution Store can snapshot it at shutdown (spec §4.5).
// Unlike ExecutionProcess, it carries the opaque action payload and
// workspace id needed to resubmit the execution on the next startup.
type RunningExecution struct {
	ProcessID      string
	SessionID      string
	WorkspaceID    string
	ExecutorType   string
	Action         json.RawMessage
	AgentSessionID *string
}

// ConcurrencyStats is the snapshot the Admission Checker evaluates
// against ConcurrencyConfig. One snapshot is used for a whole
// claim/admission decision; it is read outside any claim transaction,
// so it can be stale by the time the decision is acted on.
type ConcurrencyStats struct {
	GlobalRunning int
	ByExecutor    map[string]int
}
