package mlqueue

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suiguard/suiguard/internal/idgen"
	"github.com/suiguard/suiguard/internal/logging"
)

// RetryAfterSeconds is suggested to clients turned away by a full queue.
const RetryAfterSeconds = 10

// Middleware gates a route behind the queue. A full queue answers 429 with
// the queue stats; a wait longer than timeout answers 408. The slot is
// released when the handler chain returns, including on client disconnect
// or panic.
func (q *Queue) Middleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := logging.RequestID(c.Request.Context())
		if requestID == "" {
			requestID = idgen.New("mlq_")
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		acquired, err := q.Acquire(ctx, requestID)
		cancel()

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logging.L(c.Request.Context()).Warn("ml queue wait timed out", "request_id", requestID, "timeout", timeout)
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error":   "Request Timeout",
				"message": "Timed out waiting for an analysis slot. Please try again later.",
				"timeout": int(timeout.Seconds()),
			})
			return
		case err != nil:
			// client went away while queued
			c.Abort()
			return
		case !acquired:
			c.Header("Retry-After", "10")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too Many Requests",
				"message":     "ML analysis service is busy. Please try again later.",
				"queue_stats": q.Stats(),
				"retry_after": RetryAfterSeconds,
			})
			return
		}

		defer q.Release(requestID)
		c.Next()
	}
}
