package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/logger"
)

// CreateListingRequest carries the fields a user supplies for a new listing.
type CreateListingRequest struct {
	Title    string
	MediaRef string
	Tags     []string
}

// Enricher schedules background annotation of a listing.
type Enricher interface {
	Trigger(ctx context.Context, l *domain.Listing, reason Reason) error
}

// ListingService creates listings and serves board reads.
type ListingService struct {
	listings        ListingStore
	enricher        Enricher
	events          Broadcaster
	defaultMediaRef string
}

// NewListingService creates a ListingService. defaultMediaRef is used for
// listings created without media.
func NewListingService(listings ListingStore, enricher Enricher, events Broadcaster, defaultMediaRef string) *ListingService {
	return &ListingService{
		listings:        listings,
		enricher:        enricher,
		events:          events,
		defaultMediaRef: defaultMediaRef,
	}
}

// CreateListing stores a new listing with pending annotations, announces it
// and schedules its enrichment. The returned listing is the stored state,
// before any annotation.
func (s *ListingService) CreateListing(ctx context.Context, owner domain.Identity, req CreateListingRequest) (*domain.Listing, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	mediaRef := strings.TrimSpace(req.MediaRef)
	if mediaRef == "" {
		mediaRef = s.defaultMediaRef
	}

	l := domain.NewListing(uuid.NewString(), title, mediaRef, normalizeTags(req.Tags), owner)
	if err := s.listings.Insert(ctx, l); err != nil {
		return nil, err
	}

	ctx = logger.SetListingID(ctx, l.ID)
	logger.CtxInfo(ctx, "Listing created by %s", owner.UserID)

	s.events.BroadcastCreation(ctx, l)
	s.events.RequestRecompute()

	if err := s.enricher.Trigger(ctx, l, ReasonInitial); err != nil {
		logger.CtxWarn(ctx, "Failed to schedule enrichment: %v", err)
	}
	return l, nil
}

// RequestReannotation regenerates a listing's caption and mood. The listing
// is pending again when this returns; new annotations arrive as events.
func (s *ListingService) RequestReannotation(ctx context.Context, listingID string) (*domain.Listing, error) {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if err := s.enricher.Trigger(ctx, l, ReasonRefresh); err != nil {
		return nil, err
	}
	return s.listings.FindByID(ctx, listingID)
}

// Get returns one listing.
func (s *ListingService) Get(ctx context.Context, listingID string) (*domain.Listing, error) {
	return s.listings.FindByID(ctx, listingID)
}

// List returns listings newest first.
func (s *ListingService) List(ctx context.Context, limit, offset int) ([]domain.Listing, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.listings.ListRecent(ctx, limit, offset)
}

// NeedingAnnotation returns listings whose annotations are pending or degraded.
func (s *ListingService) NeedingAnnotation(ctx context.Context, limit int) ([]domain.Listing, error) {
	return s.listings.ListByAnnotation(ctx, limit)
}

// ReannotateStats summarizes a backlog run.
type ReannotateStats struct {
	Total     int `json:"total"`
	Scheduled int `json:"scheduled"`
	Failed    int `json:"failed"`
}

// ReannotateBacklog schedules a refresh for up to limit listings whose
// annotations are pending or degraded. It does not wait for the results.
func (s *ListingService) ReannotateBacklog(ctx context.Context, limit int) (*ReannotateStats, error) {
	backlog, err := s.NeedingAnnotation(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotation backlog: %w", err)
	}

	stats := &ReannotateStats{Total: len(backlog)}
	for i := range backlog {
		l := &backlog[i]
		if err := s.enricher.Trigger(logger.SetListingID(ctx, l.ID), l, ReasonRefresh); err != nil {
			logger.CtxWarn(ctx, "Failed to schedule re-annotation of %s: %v", l.ID, err)
			stats.Failed++
			continue
		}
		stats.Scheduled++
	}
	logger.With(logger.Fields{
		"scheduled": stats.Scheduled,
		"failed":    stats.Failed,
	}).WithCount(stats.Total).Info(ctx, "Annotation backlog scheduled")
	return stats, nil
}

// normalizeTags trims tags and drops empty ones. Order and duplicates are kept.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
