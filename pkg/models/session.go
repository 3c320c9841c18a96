package models

import "time"

// Session is a minimal stand-in for the coding-task session that owns
// a workspace and its queued/running executions. The full session
// lifecycle (chat history, agent chains, event timeline) is out of
// this subsystem's scope; only identity and lookup matter here.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// Workspace is the checked-out working tree an execution runs against.
type Workspace struct {
	ID        string
	SessionID string
	Path      string
	CreatedAt time.Time
}
