package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/service"
)

// StreamHandler pushes board events to viewers over server-sent events.
type StreamHandler struct {
	board     *service.Fanout
	keepAlive time.Duration
}

// NewStreamHandler creates a StreamHandler. keepAlive is the interval of
// comment frames sent on idle connections.
func NewStreamHandler(board *service.Fanout, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &StreamHandler{board: board, keepAlive: keepAlive}
}

// Stream handles GET /api/v1/stream. The first event is always the current
// leaderboard. Events missed while disconnected are not replayed.
func (h *StreamHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := h.board.Subscribe(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	defer h.board.Unsubscribe(sub)

	ctx = logger.WithField(ctx, logger.FieldSubscriberID, sub.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e.Data)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": keepalive\n\n")
			return err == nil
		}
	})

	logger.With(logger.Fields{"dropped": sub.Dropped()}).Debug(ctx, "Viewer disconnected")
}
