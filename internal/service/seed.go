package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/source"
	"github.com/timmy/memehustle/internal/storage"
)

// MediaRefLookup reports whether a media reference is already listed.
type MediaRefLookup interface {
	ExistsByMediaRef(ctx context.Context, ref string) (bool, error)
}

// SeedService uploads images from a source to object storage and lists them.
type SeedService struct {
	listings  *ListingService
	lookup    MediaRefLookup
	storage   storage.ObjectStorage
	workers   int
	batchSize int
}

// SeedConfig holds pool settings for a seed run.
type SeedConfig struct {
	Workers   int
	BatchSize int
}

// NewSeedService creates a SeedService.
func NewSeedService(listings *ListingService, lookup MediaRefLookup, objectStorage storage.ObjectStorage, cfg *SeedConfig) *SeedService {
	workers, batchSize := cfg.Workers, cfg.BatchSize
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SeedService{
		listings:  listings,
		lookup:    lookup,
		storage:   objectStorage,
		workers:   workers,
		batchSize: batchSize,
	}
}

// SeedStats summarizes a seed run.
type SeedStats struct {
	TotalItems   int64
	CreatedItems int64
	SkippedItems int64
	FailedItems  int64
	StartTime    time.Time
	EndTime      time.Time
}

// SeedOptions controls a seed run.
type SeedOptions struct {
	Owner domain.Identity
	Limit int
	// Force lists an image even if a listing already uses it.
	Force bool
}

var errAlreadyListed = errors.New("already listed")

// Seed lists every image offered by src, up to opts.Limit (0 = all).
func (s *SeedService) Seed(ctx context.Context, src source.Source, opts SeedOptions) (*SeedStats, error) {
	if s.storage == nil {
		return nil, errors.New("object storage is not configured")
	}
	if opts.Owner.UserID == "" {
		return nil, fmt.Errorf("%w: seed owner is required", domain.ErrInvalidInput)
	}

	ctx = logger.SetComponent(ctx, "seed")
	stats := &SeedStats{StartTime: time.Now()}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"source": src.ID(),
		"limit":  opts.Limit,
		"force":  opts.Force,
	}).Info("Starting seed")

	items := make(chan source.Item, s.workers*2)
	results := make(chan error, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				results <- s.seedItem(ctx, item, opts)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for err := range results {
			switch {
			case err == nil:
				atomic.AddInt64(&stats.CreatedItems, 1)
			case errors.Is(err, errAlreadyListed):
				atomic.AddInt64(&stats.SkippedItems, 1)
			default:
				atomic.AddInt64(&stats.FailedItems, 1)
				logger.FromContext(ctx).WithError(err).Error("Failed to seed item")
			}
		}
		close(done)
	}()

	cursor := ""
	fetched := 0
feed:
	for ctx.Err() == nil {
		batchLimit := s.batchSize
		if opts.Limit > 0 {
			remaining := opts.Limit - fetched
			if remaining <= 0 {
				break
			}
			batchLimit = min(batchLimit, remaining)
		}

		batch, next, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to fetch batch")
			break
		}
		if len(batch) == 0 {
			break
		}
		atomic.AddInt64(&stats.TotalItems, int64(len(batch)))
		fetched += len(batch)

		for _, item := range batch {
			select {
			case items <- item:
			case <-ctx.Done():
				break feed
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	close(items)
	wg.Wait()
	close(results)
	<-done

	stats.EndTime = time.Now()
	logger.FromContext(ctx).WithFields(logger.Fields{
		"total":    stats.TotalItems,
		"created":  stats.CreatedItems,
		"skipped":  stats.SkippedItems,
		"failed":   stats.FailedItems,
		"duration": stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Seed completed")

	return stats, nil
}

func (s *SeedService) seedItem(ctx context.Context, item source.Item, opts SeedOptions) error {
	data, err := os.ReadFile(item.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", item.SourceID, err)
	}
	mimeType, err := detectImageType(data)
	if err != nil {
		return fmt.Errorf("%s: %w", item.SourceID, err)
	}

	key := fmt.Sprintf("memes/%s.%s", md5Hex(data), item.Format)
	ref := storage.Ref(key)

	if !opts.Force {
		listed, err := s.lookup.ExistsByMediaRef(ctx, ref)
		if err != nil {
			return err
		}
		if listed {
			return errAlreadyListed
		}
	}

	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
			return err
		}
	}

	_, err = s.listings.CreateListing(ctx, opts.Owner, CreateListingRequest{
		Title:    item.Title,
		MediaRef: ref,
		Tags:     item.Tags,
	})
	return err
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
