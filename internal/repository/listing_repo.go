package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/memehustle/internal/domain"
	"gorm.io/gorm"
)

// maxUpdateAttempts bounds optimistic retries in UpdateByID.
const maxUpdateAttempts = 8

// Mutator changes a listing in place. Returning an error aborts the update
// without writing anything.
type Mutator func(l *domain.Listing) error

// ListingRepository stores listings and provides atomic per-listing
// read-modify-write through a version column.
type ListingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new ListingRepository.
func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Insert creates a new listing record.
func (r *ListingRepository) Insert(ctx context.Context, l *domain.Listing) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// FindByID retrieves a listing by ID. Returns domain.ErrNotFound if absent.
func (r *ListingRepository) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	var l domain.Listing
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("listing %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load listing %s: %w", id, err)
	}
	return &l, nil
}

// UpdateByID applies mutate to the current state of the listing and writes it
// back only if nobody else wrote in between. On a version conflict the listing
// is re-read and mutate is applied again, so mutate must be safe to repeat.
//
// Returns the updated listing, domain.ErrNotFound if the listing does not
// exist (or vanished mid-update), or whatever error mutate returned.
func (r *ListingRepository) UpdateByID(ctx context.Context, id string, mutate Mutator) (*domain.Listing, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		l, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		version := l.Version
		if err := mutate(l); err != nil {
			return nil, err
		}
		l.Version = version + 1
		l.UpdatedAt = time.Now()

		res := r.db.WithContext(ctx).
			Model(&domain.Listing{}).
			Where("id = ? AND version = ?", id, version).
			Updates(map[string]interface{}{
				"title":          l.Title,
				"media_ref":      l.MediaRef,
				"tags":           l.Tags,
				"caption":        l.Caption,
				"mood":           l.Mood,
				"upvotes":        l.Upvotes,
				"downvotes":      l.Downvotes,
				"highest_bid":    l.HighestBid,
				"highest_bidder": l.HighestBidder,
				"votes":          l.Votes,
				"version":        l.Version,
				"updated_at":     l.UpdatedAt,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update listing %s: %w", id, res.Error)
		}
		if res.RowsAffected == 1 {
			return l, nil
		}
	}
	return nil, fmt.Errorf("listing %s: %w after %d attempts", id, domain.ErrConflict, maxUpdateAttempts)
}

// DeleteByID removes a listing. Returns domain.ErrNotFound if nothing was deleted.
func (r *ListingRepository) DeleteByID(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.Listing{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete listing %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("listing %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// TopByUpvotes returns the leaderboard: most upvotes first, newer listings
// winning ties.
func (r *ListingRepository) TopByUpvotes(ctx context.Context, limit int) ([]domain.Listing, error) {
	var listings []domain.Listing
	if err := r.db.WithContext(ctx).
		Order("upvotes DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return listings, nil
}

// ListRecent returns listings newest first.
func (r *ListingRepository) ListRecent(ctx context.Context, limit, offset int) ([]domain.Listing, error) {
	var listings []domain.Listing
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

// ListByAnnotation returns listings whose caption or mood is still
// pending or fell back to the degraded placeholder, oldest first.
func (r *ListingRepository) ListByAnnotation(ctx context.Context, limit int) ([]domain.Listing, error) {
	var listings []domain.Listing
	if err := r.db.WithContext(ctx).
		Where("caption IN ? OR mood IN ?",
			[]string{domain.AnnotationPending, domain.FallbackCaption},
			[]string{domain.AnnotationPending, domain.FallbackMood}).
		Order("created_at ASC").
		Limit(limit).
		Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to list listings needing annotation: %w", err)
	}
	return listings, nil
}

// ExistsByMediaRef reports whether any listing uses ref as its media.
func (r *ListingRepository) ExistsByMediaRef(ctx context.Context, ref string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("media_ref = ?", ref).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check media ref: %w", err)
	}
	return count > 0, nil
}
