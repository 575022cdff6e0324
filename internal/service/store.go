package service

import (
	"context"

	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/repository"
)

// ListingStore is the persistence the services need. *repository.ListingRepository
// implements it.
type ListingStore interface {
	Insert(ctx context.Context, l *domain.Listing) error
	FindByID(ctx context.Context, id string) (*domain.Listing, error)
	UpdateByID(ctx context.Context, id string, mutate repository.Mutator) (*domain.Listing, error)
	DeleteByID(ctx context.Context, id string) error
	TopByUpvotes(ctx context.Context, limit int) ([]domain.Listing, error)
	ListRecent(ctx context.Context, limit, offset int) ([]domain.Listing, error)
	ListByAnnotation(ctx context.Context, limit int) ([]domain.Listing, error)
}

// IdentityResolver maps a user ID to its current display name.
type IdentityResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Broadcaster announces listing changes to realtime viewers.
type Broadcaster interface {
	BroadcastCreation(ctx context.Context, l *domain.Listing)
	BroadcastMutation(ctx context.Context, l *domain.Listing)
	BroadcastDeletion(ctx context.Context, listingID string)
	// RequestRecompute asks for a leaderboard refresh without waiting for it.
	RequestRecompute()
}

var _ ListingStore = (*repository.ListingRepository)(nil)
var _ IdentityResolver = (*repository.UserRepository)(nil)
