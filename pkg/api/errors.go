package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskforge/conductor/pkg/admission"
	"github.com/taskforge/conductor/pkg/queue"
)

// writeError maps a core-package error to an HTTP status and body,
// mirroring the teacher's mapServiceError: admission/queue sentinel
// errors get a specific status, anything else is a 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, admission.ErrAlreadyQueued), errors.Is(err, queue.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, admission.ErrQueueDisabled):
		body := gin.H{"error": err.Error()}
		var limitErr *admission.LimitReachedError
		if errors.As(err, &limitErr) {
			body["current"] = limitErr.Current
			body["limit"] = limitErr.Limit
			if !limitErr.Global {
				body["executor_type"] = limitErr.ExecutorType
			}
		}
		c.JSON(http.StatusServiceUnavailable, body)
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
