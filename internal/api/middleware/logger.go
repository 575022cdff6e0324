package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/memehustle/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// Logger injects a request-scoped logger carrying a request ID and logs the
// completion of each request with its status and latency.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logger.WithFields(c.Request.Context(), logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, requestID)

		c.Next()

		entry := logger.With(logger.Fields{
			logger.FieldStatus: c.Writer.Status(),
			logger.FieldSize:   c.Writer.Size(),
		}).WithDuration(start)

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error(c.Request.Context(), "%s %s", c.Request.Method, path)
		case status >= 400:
			entry.Warn(c.Request.Context(), "%s %s", c.Request.Method, path)
		default:
			entry.Info(c.Request.Context(), "%s %s", c.Request.Method, path)
		}
	}
}
