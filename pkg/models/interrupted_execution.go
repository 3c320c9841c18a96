package models

import (
	"encoding/json"
	"time"
)

// InterruptedExecution records an execution_process that was still
// running when the process crashed or was restarted, so it can be
// resumed on the next startup (spec §5).
type InterruptedExecution struct {
	ID                 string
	ExecutionProcessID string
	SessionID          string
	WorkspaceID        string
	ExecutorType       string
	OriginalAction     json.RawMessage
	RunReason          string
	AgentSessionID     *string
	InterruptedAt      time.Time
	Resumed            bool
	ResumedAt          *time.Time
	CreatedAt          time.Time
}

// RunReasonCodingAgent is the only run reason this subsystem writes
// today: every interrupted row it records came from a coding-agent
// execution the Queue Processor or Admission Entry Point started
// (spec §4.5, §4.4 step 8).
const RunReasonCodingAgent = "CodingAgent"
