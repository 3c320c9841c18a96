// Package api exposes the thinnest possible HTTP caller of the
// Admission Entry Point and Task Queue Service: health, queue
// inspection, submission, and cancellation. It is not the full
// HTTP/RPC surface spec.md places out of scope (routing, auth, the
// MCP tool surface, telemetry middleware) — those belong to a layer
// above this subsystem.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskforge/conductor/pkg/admission"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/queue"
)

// Server wraps a gin.Engine wired to the admission and queue services.
type Server struct {
	engine     *gin.Engine
	db         *sql.DB
	entryPoint *admission.EntryPoint
	queueSvc   *queue.Service
	configs    *config.Store
}

// NewServer builds a Server and registers its routes.
func NewServer(db *sql.DB, entryPoint *admission.EntryPoint, queueSvc *queue.Service, configs *config.Store) *Server {
	engine := gin.Default()

	s := &Server{engine: engine, db: db, entryPoint: entryPoint, queueSvc: queueSvc, configs: configs}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/queue/stats", s.handleQueueStats)
	s.engine.GET("/sessions/:id/queue", s.handleSessionQueueStatus)
	s.engine.POST("/executions", s.handleSubmitExecution)
	s.engine.DELETE("/sessions/:id/queue", s.handleCancelForSession)
	s.engine.DELETE("/workspaces/:id/queue", s.handleCancelForWorkspace)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
