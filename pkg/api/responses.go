package api

import "github.com/taskforge/conductor/pkg/models"

// SubmitExecutionResponse is the tagged union returned by POST
// /executions (spec §6): either the execution started immediately or
// was queued.
type SubmitExecutionResponse struct {
	Status           string                   `json:"status"` // "started" or "queued"
	ExecutionProcess *models.ExecutionProcess `json:"execution_process,omitempty"`
	QueueEntry       *models.QueueEntry       `json:"queue_entry,omitempty"`
	Position         *PositionResponse        `json:"position,omitempty"`
}

// PositionResponse is a QueuePosition rendered for the wire (spec §6).
type PositionResponse struct {
	EntryID              string `json:"entry_id"`
	Position             int    `json:"position"`
	TotalAhead           int    `json:"total_ahead"`
	EstimatedWaitMinutes *int   `json:"estimated_wait_minutes,omitempty"`
}

// SessionQueueStatusResponse is the GET /sessions/:id/queue body.
type SessionQueueStatusResponse struct {
	IsQueued bool               `json:"is_queued"`
	Entry    *models.QueueEntry `json:"entry,omitempty"`
	Position *PositionResponse  `json:"position,omitempty"`
}

// QueueStatsResponse is the GET /queue/stats body.
type QueueStatsResponse struct {
	TotalPending         int                              `json:"total_pending"`
	TotalProcessing      int                              `json:"total_processing"`
	ByExecutorType       map[string]ExecutorStatsResponse `json:"by_executor"`
	EstimatedWaitMinutes *int                             `json:"estimated_wait_minutes,omitempty"`
}

// ExecutorStatsResponse narrows QueueStatsResponse to one executor type.
type ExecutorStatsResponse struct {
	Pending    int     `json:"pending"`
	Processing int     `json:"processing"`
	Limit      *uint32 `json:"limit,omitempty"`
}

func renderPosition(pos *models.QueuePosition) *PositionResponse {
	if pos == nil {
		return nil
	}
	out := &PositionResponse{EntryID: pos.EntryID, Position: pos.Position, TotalAhead: pos.AheadOfTotal}
	if pos.AheadOfTotal > 0 {
		minutes := pos.AheadOfTotal * 5
		out.EstimatedWaitMinutes = &minutes
	}
	return out
}

func renderQueueStats(stats models.QueueStats) QueueStatsResponse {
	out := QueueStatsResponse{
		TotalPending:    stats.TotalPending,
		TotalProcessing: stats.TotalProcessing,
		ByExecutorType:  make(map[string]ExecutorStatsResponse, len(stats.ByExecutorType)),
	}
	for k, v := range stats.ByExecutorType {
		out.ByExecutorType[k] = ExecutorStatsResponse{Pending: v.Pending, Processing: v.Processing, Limit: v.Limit}
	}
	if stats.EstimatedWaitMinutes > 0 {
		minutes := stats.EstimatedWaitMinutes
		out.EstimatedWaitMinutes = &minutes
	}
	return out
}
