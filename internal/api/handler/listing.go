package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memehustle/internal/api/middleware"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/service"
)

// ListingHandler serves board reads and the marketplace actions.
type ListingHandler struct {
	listings *service.ListingService
	ledger   *service.LedgerService
	board    *service.Fanout
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings *service.ListingService, ledger *service.LedgerService, board *service.Fanout) *ListingHandler {
	return &ListingHandler{listings: listings, ledger: ledger, board: board}
}

// List handles GET /api/v1/listings.
func (h *ListingHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	listings, err := h.listings.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

// Get handles GET /api/v1/listings/:id.
func (h *ListingHandler) Get(c *gin.Context) {
	l, err := h.listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Leaderboard handles GET /api/v1/leaderboard?top=N.
func (h *ListingHandler) Leaderboard(c *gin.Context) {
	top, err := strconv.Atoi(c.DefaultQuery("top", "10"))
	if err != nil || top <= 0 {
		badRequest(c, "top must be a positive integer")
		return
	}

	listings, err := h.board.Leaderboard(c.Request.Context(), top)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

type createListingRequest struct {
	Title    string          `json:"title"`
	ImageURL string          `json:"image_url"`
	Tags     json.RawMessage `json:"tags"`
}

// Create handles POST /api/v1/listings. Tags may be a JSON array or a
// comma-separated string.
func (h *ListingHandler) Create(c *gin.Context) {
	id, _ := middleware.Identity(c)

	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	tags, ok := parseTags(req.Tags)
	if !ok {
		badRequest(c, "tags must be an array of strings or a comma-separated string")
		return
	}

	l, err := h.listings.CreateListing(c.Request.Context(), id, service.CreateListingRequest{
		Title:    req.Title,
		MediaRef: req.ImageURL,
		Tags:     tags,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

type voteRequest struct {
	Type string `json:"type"`
}

// Vote handles POST /api/v1/listings/:id/vote.
func (h *ListingHandler) Vote(c *gin.Context) {
	id, _ := middleware.Identity(c)

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := logger.SetListingID(c.Request.Context(), c.Param("id"))
	result, err := h.ledger.Vote(ctx, c.Param("id"), id.UserID, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type bidRequest struct {
	Credits *int64 `json:"credits"`
}

// Bid handles POST /api/v1/listings/:id/bid.
func (h *ListingHandler) Bid(c *gin.Context) {
	id, _ := middleware.Identity(c)

	var req bidRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits == nil {
		badRequest(c, "credits must be a whole number")
		return
	}

	ctx := logger.SetListingID(c.Request.Context(), c.Param("id"))
	l, err := h.ledger.Bid(ctx, c.Param("id"), id.UserID, *req.Credits)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Reannotate handles POST /api/v1/listings/:id/caption. New annotations
// arrive later as listing.updated events.
func (h *ListingHandler) Reannotate(c *gin.Context) {
	ctx := logger.SetListingID(c.Request.Context(), c.Param("id"))
	l, err := h.listings.RequestReannotation(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, l)
}

// Delete handles DELETE /api/v1/listings/:id.
func (h *ListingHandler) Delete(c *gin.Context) {
	id, _ := middleware.Identity(c)

	ctx := logger.SetListingID(c.Request.Context(), c.Param("id"))
	if err := h.ledger.Delete(ctx, c.Param("id"), id.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseTags(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, false
	}
	return strings.Split(joined, ","), true
}
