package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/memehustle/internal/cache"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/metrics"
)

// VoteResult is the state a voter sees after a vote is applied.
type VoteResult struct {
	Upvotes   int                  `json:"upvotes"`
	Downvotes int                  `json:"downvotes"`
	UserVote  domain.VoteDirection `json:"user_vote"`
	Listing   *domain.Listing      `json:"listing"`
}

// LedgerService applies votes, bids and deletions. Every state change goes
// through a single atomic update so concurrent callers never lose writes.
type LedgerService struct {
	listings   ListingStore
	identities IdentityResolver
	cache      *cache.Cache
	events     Broadcaster
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(listings ListingStore, identities IdentityResolver, c *cache.Cache, events Broadcaster) *LedgerService {
	return &LedgerService{
		listings:   listings,
		identities: identities,
		cache:      c,
		events:     events,
	}
}

// Vote records userID's vote on a listing. Voting the same direction twice
// removes the vote; voting the other direction flips it.
func (s *LedgerService) Vote(ctx context.Context, listingID, userID, rawDirection string) (*VoteResult, error) {
	direction, err := domain.ParseVoteDirection(rawDirection)
	if err != nil {
		return nil, err
	}

	var userVote domain.VoteDirection
	updated, err := s.listings.UpdateByID(ctx, listingID, func(l *domain.Listing) error {
		userVote = domain.ApplyVote(l, userID, direction)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.VotesTotal.WithLabelValues(string(userVote)).Inc()
	logger.CtxDebug(ctx, "Vote %s on %s by %s resolved to %s", direction, listingID, userID, userVote)

	s.events.BroadcastMutation(ctx, updated)
	s.events.RequestRecompute()

	return &VoteResult{
		Upvotes:   updated.Upvotes,
		Downvotes: updated.Downvotes,
		UserVote:  userVote,
		Listing:   updated,
	}, nil
}

// Bid places a bid of amount credits. It must be strictly greater than the
// current highest bid; the bidder's display name is recorded on success.
func (s *LedgerService) Bid(ctx context.Context, listingID, userID string, amount int64) (*domain.Listing, error) {
	if amount <= 0 {
		metrics.BidsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: bid must be a positive number of credits", domain.ErrInvalidInput)
	}

	current, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if amount <= current.HighestBid {
		metrics.BidsTotal.WithLabelValues("too_low").Inc()
		return nil, &domain.BidTooLowError{Current: current.HighestBid}
	}

	bidder, err := s.identities.DisplayName(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bidder: %w", err)
	}

	updated, err := s.listings.UpdateByID(ctx, listingID, func(l *domain.Listing) error {
		// Another bid may have landed since the check above.
		if amount <= l.HighestBid {
			return &domain.BidTooLowError{Current: l.HighestBid}
		}
		l.HighestBid = amount
		l.HighestBidder = bidder
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrBidTooLow) {
			metrics.BidsTotal.WithLabelValues("too_low").Inc()
		}
		return nil, err
	}

	metrics.BidsTotal.WithLabelValues("accepted").Inc()
	logger.CtxInfo(ctx, "Bid of %d on %s accepted from %s", amount, listingID, bidder)

	s.events.BroadcastMutation(ctx, updated)
	return updated, nil
}

// Delete removes a listing owned by userID, purging its cached annotations.
func (s *LedgerService) Delete(ctx context.Context, listingID, userID string) error {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if l.OwnerID != userID {
		return fmt.Errorf("%w: only the owner can delete listing %s", domain.ErrForbidden, listingID)
	}

	if err := s.listings.DeleteByID(ctx, listingID); err != nil {
		return err
	}
	if err := s.cache.PurgeListing(ctx, listingID); err != nil {
		logger.CtxWarn(ctx, "Failed to purge cache for deleted listing %s: %v", listingID, err)
	}

	logger.CtxInfo(ctx, "Listing %s deleted by owner", listingID)
	s.events.BroadcastDeletion(ctx, listingID)
	s.events.RequestRecompute()
	return nil
}
