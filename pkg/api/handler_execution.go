package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleSubmitExecution implements POST /executions: the Admission
// Entry Point's follow_up operation (spec §4.6).
func (s *Server) handleSubmitExecution(c *gin.Context) {
	var req SubmitExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := s.entryPoint.Submit(c.Request.Context(), req.SessionID, req.WorkspaceID, req.ExecutorType, req.ExecutorAction, req.Prompt)
	if err != nil {
		writeError(c, err)
		return
	}

	switch {
	case outcome.Started != nil:
		c.JSON(http.StatusOK, SubmitExecutionResponse{Status: "started", ExecutionProcess: outcome.Started})
	case outcome.Queued != nil:
		c.JSON(http.StatusAccepted, SubmitExecutionResponse{
			Status:     "queued",
			QueueEntry: outcome.Queued.Entry,
			Position: &PositionResponse{
				EntryID:  outcome.Queued.Entry.ID,
				Position: outcome.Queued.Position,
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admission returned neither started nor queued"})
	}
}
