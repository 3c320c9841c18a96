package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleQueueStats implements GET /queue/stats (spec §6).
func (s *Server) handleQueueStats(c *gin.Context) {
	stats, err := s.queueSvc.GetQueueStats(c.Request.Context(), s.configs.Get().Concurrency)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderQueueStats(stats))
}

// handleSessionQueueStatus implements GET /sessions/:id/queue (spec §6).
func (s *Server) handleSessionQueueStatus(c *gin.Context) {
	status, err := s.queueSvc.GetSessionQueueStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionQueueStatusResponse{
		IsQueued: status.Entry != nil,
		Entry:    status.Entry,
		Position: renderPosition(status.Position),
	})
}

// handleCancelForSession implements DELETE /sessions/:id/queue (spec §6).
func (s *Server) handleCancelForSession(c *gin.Context) {
	if err := s.queueSvc.CancelForSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": 1})
}

// handleCancelForWorkspace implements DELETE /workspaces/:id/queue (spec §6).
func (s *Server) handleCancelForWorkspace(c *gin.Context) {
	n, err := s.queueSvc.CancelForWorkspace(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}
