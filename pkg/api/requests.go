package api

import "encoding/json"

// SubmitExecutionRequest is the body of POST /executions, the wire
// shape of the Admission Entry Point's follow_up operation (spec §4.6).
type SubmitExecutionRequest struct {
	SessionID      string          `json:"session_id" binding:"required"`
	WorkspaceID    string          `json:"workspace_id" binding:"required"`
	ExecutorType   string          `json:"executor_type" binding:"required"`
	ExecutorAction json.RawMessage `json:"executor_action" binding:"required"`
	Prompt         *string         `json:"prompt,omitempty"`
}
