// Package admission implements the Admission Entry Point: the single
// place every new execution request passes through, deciding whether
// it starts immediately or is queued (spec §4.6).
package admission

import "github.com/taskforge/conductor/pkg/models"

// Outcome is the tagged result of a Submit call.
type Outcome struct {
	// Started is set when the execution was admitted immediately.
	Started *models.ExecutionProcess
	// Queued is set when the execution was queued instead.
	Queued *QueuedOutcome
}

// QueuedOutcome carries the entry and its position for a queued submission.
type QueuedOutcome struct {
	Entry    *models.QueueEntry
	Position int
}
