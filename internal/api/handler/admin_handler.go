package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/service"
)

// AdminHandler handles maintenance operations on the board.
type AdminHandler struct {
	listings *service.ListingService

	// Backlog job state
	mu            sync.RWMutex
	isRunning     bool
	lastStats     *service.ReannotateStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - listings: listing service used to schedule re-annotation.
//
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(listings *service.ListingService) *AdminHandler {
	return &AdminHandler{listings: listings}
}

// ReannotateRequest represents the backlog API request.
type ReannotateRequest struct {
	Limit int `json:"limit" binding:"required,min=1,max=1000"`
}

// ReannotateStatusResponse represents the state of the last backlog run.
type ReannotateStatusResponse struct {
	IsRunning     bool                     `json:"is_running"`
	LastRunTime   string                   `json:"last_run_time,omitempty"`
	LastRunStatus string                   `json:"last_run_status,omitempty"`
	LastStats     *service.ReannotateStats `json:"last_stats,omitempty"`
}

// TriggerReannotate schedules a refresh for listings with pending or
// degraded annotations. Only one run may be active at a time.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerReannotate(c *gin.Context) {
	ctx := c.Request.Context()

	var req ReannotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid reannotate request: client_ip=%s, error=%v", c.ClientIP(), err)
		badRequest(c, "limit must be between 1 and 1000")
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Reannotate request rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "re-annotation is already running"})
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	// Scheduling outlives the request; the tasks themselves run in the pipeline.
	runCtx := logger.FromContext(ctx).WithContext(context.Background())
	startTime := time.Now()
	stats, err := h.listings.ReannotateBacklog(runCtx, req.Limit)

	h.mu.Lock()
	h.isRunning = false
	h.lastRunTime = startTime
	h.lastStats = stats
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "scheduled"
	}
	h.mu.Unlock()

	if err != nil {
		respondError(c, err)
		return
	}

	logger.With(logger.Fields{
		"total":     stats.Total,
		"scheduled": stats.Scheduled,
		"failed":    stats.Failed,
	}).WithDuration(startTime).Info(ctx, "Re-annotation scheduled")

	c.JSON(http.StatusAccepted, stats)
}

// GetReannotateStatus reports the last backlog run.
func (h *AdminHandler) GetReannotateStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := ReannotateStatusResponse{
		IsRunning:     h.isRunning,
		LastRunStatus: h.lastRunStatus,
		LastStats:     h.lastStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
