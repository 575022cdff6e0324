package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/realtime"
)

// LeaderboardReader returns the top listings by upvotes.
type LeaderboardReader interface {
	TopByUpvotes(ctx context.Context, limit int) ([]domain.Listing, error)
}

// Fanout publishes listing events and keeps every viewer's leaderboard fresh,
// both on demand and on a fixed schedule.
type Fanout struct {
	hub       *realtime.Hub
	listings  LeaderboardReader
	size      int
	interval  time.Duration
	recompute chan struct{}
}

// NewFanout creates a Fanout over hub.
func NewFanout(hub *realtime.Hub, listings LeaderboardReader, cfg *config.RealtimeConfig) *Fanout {
	size := cfg.LeaderboardSize
	if size <= 0 {
		size = 10
	}
	interval := cfg.LeaderboardInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Fanout{
		hub:       hub,
		listings:  listings,
		size:      size,
		interval:  interval,
		recompute: make(chan struct{}, 1),
	}
}

// DeletedPayload is the data of a listing.deleted event.
type DeletedPayload struct {
	ID string `json:"id"`
}

func (f *Fanout) BroadcastCreation(ctx context.Context, l *domain.Listing) {
	f.publish(ctx, realtime.EventListingCreated, l)
}

func (f *Fanout) BroadcastMutation(ctx context.Context, l *domain.Listing) {
	f.publish(ctx, realtime.EventListingUpdated, l)
}

func (f *Fanout) BroadcastDeletion(ctx context.Context, listingID string) {
	f.publish(ctx, realtime.EventListingDeleted, DeletedPayload{ID: listingID})
}

// RequestRecompute signals Run to recompute. Signals sent while one is
// already pending collapse into it.
func (f *Fanout) RequestRecompute() {
	select {
	case f.recompute <- struct{}{}:
	default:
	}
}

// Leaderboard returns the current top listings.
func (f *Fanout) Leaderboard(ctx context.Context, top int) ([]domain.Listing, error) {
	if top <= 0 || top > f.size*10 {
		top = f.size
	}
	listings, err := f.listings.TopByUpvotes(ctx, top)
	if err != nil {
		return nil, fmt.Errorf("failed to compute leaderboard: %w", err)
	}
	return listings, nil
}

// RecomputeLeaderboard reads the top listings and publishes them to everyone.
func (f *Fanout) RecomputeLeaderboard(ctx context.Context) error {
	event, err := f.leaderboardEvent(ctx)
	if err != nil {
		return err
	}
	f.hub.Publish(event)
	return nil
}

// Run recomputes the leaderboard on every tick and on every request until
// ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) {
	ctx = logger.SetComponent(ctx, "fanout")
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	logger.CtxInfo(ctx, "Leaderboard loop started (interval %s, size %d)", f.interval, f.size)
	for {
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Leaderboard loop stopped")
			return
		case <-ticker.C:
		case <-f.recompute:
		}

		if err := f.RecomputeLeaderboard(ctx); err != nil {
			logger.CtxError(ctx, "Leaderboard recompute failed: %v", err)
		}
	}
}

// Subscribe registers a viewer and immediately sends it the current
// leaderboard. The caller must Unsubscribe when the viewer leaves.
func (f *Fanout) Subscribe(ctx context.Context) (*realtime.Subscriber, error) {
	sub := f.hub.Subscribe()

	event, err := f.leaderboardEvent(ctx)
	if err != nil {
		f.hub.Unsubscribe(sub)
		return nil, err
	}
	f.hub.Send(sub, event)

	logger.FromContext(ctx).WithField(logger.FieldSubscriberID, sub.ID).
		Debugf("Subscriber connected (%d total)", f.hub.Count())
	return sub, nil
}

// Unsubscribe removes a viewer.
func (f *Fanout) Unsubscribe(sub *realtime.Subscriber) {
	f.hub.Unsubscribe(sub)
}

func (f *Fanout) leaderboardEvent(ctx context.Context) (realtime.Event, error) {
	listings, err := f.Leaderboard(ctx, f.size)
	if err != nil {
		return realtime.Event{}, err
	}
	return realtime.NewEvent(realtime.EventLeaderboardUpdated, listings)
}

func (f *Fanout) publish(ctx context.Context, t realtime.EventType, data interface{}) {
	event, err := realtime.NewEvent(t, data)
	if err != nil {
		logger.CtxError(ctx, "Failed to encode %s event: %v", t, err)
		return
	}
	f.hub.Publish(event)
}
