package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/memehustle/internal/cache"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/metrics"
	"github.com/timmy/memehustle/internal/prompts"
	"golang.org/x/sync/errgroup"
)

// Reason says why enrichment was requested.
type Reason string

const (
	ReasonInitial Reason = "initial"
	ReasonRefresh Reason = "refresh"
)

type enrichTask struct {
	ctx       context.Context
	listingID string
	mediaRef  string
	tags      []string
	reason    Reason
}

// EnrichmentService generates captions and moods in the background. Callers
// never wait for generation; results reach viewers as listing.updated events.
type EnrichmentService struct {
	listings  ListingStore
	media     MediaFetcher
	generator Generator
	cache     *cache.Cache
	events    Broadcaster

	workers int
	timeout time.Duration
	tasks   chan enrichTask
	pending sync.WaitGroup
	started sync.Once
}

// NewEnrichmentService creates the pipeline. Call Start to launch its workers.
func NewEnrichmentService(
	cfg *config.EnrichmentConfig,
	listings ListingStore,
	media MediaFetcher,
	generator Generator,
	c *cache.Cache,
	events Broadcaster,
) *EnrichmentService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}
	timeout := cfg.GenerateTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &EnrichmentService{
		listings:  listings,
		media:     media,
		generator: generator,
		cache:     c,
		events:    events,
		workers:   workers,
		timeout:   timeout,
		tasks:     make(chan enrichTask, queueSize),
	}
}

// Start launches the worker pool. Workers stop when ctx is cancelled; tasks
// already running finish on their own.
func (s *EnrichmentService) Start(ctx context.Context) {
	s.started.Do(func() {
		for i := 0; i < s.workers; i++ {
			go s.worker(ctx, i)
		}
		logger.CtxInfo(ctx, "Enrichment pool started with %d workers", s.workers)
	})
}

func (s *EnrichmentService) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.tasks:
			metrics.EnrichmentQueueDepth.Dec()
			s.run(logger.WithField(task.ctx, "worker", workerID), task)
		}
	}
}

// Trigger schedules enrichment for l and returns without waiting for it.
// A refresh first drops cached annotations and marks the listing pending.
func (s *EnrichmentService) Trigger(ctx context.Context, l *domain.Listing, reason Reason) error {
	if reason == ReasonRefresh {
		keys := make([]string, 0, len(cache.Kinds))
		for _, kind := range cache.Kinds {
			keys = append(keys, cache.Key(l.ID, kind))
		}
		if err := s.cache.Invalidate(ctx, keys...); err != nil {
			logger.CtxWarn(ctx, "Failed to invalidate annotations of %s: %v", l.ID, err)
		}

		updated, err := s.listings.UpdateByID(ctx, l.ID, func(cur *domain.Listing) error {
			cur.MarkPending()
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to reset annotations: %w", err)
		}
		s.events.BroadcastMutation(ctx, updated)
		l = updated
	}

	tags := make([]string, len(l.Tags))
	copy(tags, l.Tags)

	s.enqueue(enrichTask{
		ctx:       logger.FromContext(ctx).WithContext(context.Background()),
		listingID: l.ID,
		mediaRef:  l.MediaRef,
		tags:      tags,
		reason:    reason,
	})
	return nil
}

// Wait blocks until every scheduled task has finished or ctx is done.
func (s *EnrichmentService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EnrichmentService) enqueue(task enrichTask) {
	s.pending.Add(1)
	metrics.EnrichmentQueueDepth.Inc()

	select {
	case s.tasks <- task:
	default:
		metrics.EnrichmentQueueDepth.Dec()
		metrics.EnrichmentOverflow.Inc()
		logger.CtxWarn(task.ctx, "Enrichment queue full, running %s outside the pool", task.listingID)
		go s.run(task.ctx, task)
	}
}

// run executes one task. Failures end here: they are logged and never
// reach the request that scheduled the task.
func (s *EnrichmentService) run(ctx context.Context, task enrichTask) {
	defer s.pending.Done()

	ctx = logger.SetComponent(ctx, "enrichment")
	ctx = logger.SetListingID(ctx, task.listingID)
	ctx = logger.WithField(ctx, logger.FieldReason, string(task.reason))

	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Enrichment task panicked: %v", r)
		}
	}()

	start := time.Now()

	media, err := s.media.Fetch(ctx, task.mediaRef)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Media unavailable, using placeholder image")
		media = PlaceholderMedia()
	}

	var caption, mood string
	var g errgroup.Group
	g.Go(func() error {
		caption = s.generate(ctx, task.listingID, cache.KindCaption, media, prompts.Caption(task.tags), domain.FallbackCaption)
		return nil
	})
	g.Go(func() error {
		mood = s.generate(ctx, task.listingID, cache.KindMood, media, prompts.Mood(task.tags), domain.FallbackMood)
		return nil
	})
	_ = g.Wait()

	updated, err := s.listings.UpdateByID(ctx, task.listingID, func(l *domain.Listing) error {
		l.Caption = caption
		l.Mood = mood
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		logger.CtxWarn(ctx, "Listing deleted during enrichment, discarding result")
		if err := s.cache.PurgeListing(ctx, task.listingID); err != nil {
			logger.CtxWarn(ctx, "Failed to purge cache: %v", err)
		}
		return
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to store annotations")
		return
	}

	s.events.BroadcastMutation(ctx, updated)
	logger.With(logger.Fields{"state": string(updated.AnnotationState())}).
		WithDuration(start).
		Info(ctx, "Enrichment completed")
}

// generate returns the annotation of one kind, falling back to a fixed text
// when generation fails.
func (s *EnrichmentService) generate(ctx context.Context, listingID string, kind cache.Kind, media *Media, prompt, fallback string) (text string) {
	ctx = logger.WithField(ctx, logger.FieldKind, string(kind))
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Generation panicked: %v", r)
			text = fallback
		}
	}()

	value, hit, err := s.cache.GetOrGenerate(ctx, cache.Key(listingID, kind), func(fctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(fctx, s.timeout)
		defer cancel()

		start := time.Now()
		out, err := s.generator.Generate(callCtx, media, prompt)
		metrics.GenerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		if err == nil && prompts.CleanOutput(out) == "" {
			err = &domain.GenerationError{Kind: domain.GenerationMalformed, Err: errors.New("empty completion")}
		}
		if err != nil {
			metrics.GenerationsTotal.WithLabelValues(string(kind), string(domain.GenerationErrorKindOf(err))).Inc()
			return "", err
		}
		metrics.GenerationsTotal.WithLabelValues(string(kind), "ok").Inc()
		return prompts.CleanOutput(out), nil
	})
	if err != nil {
		errKind := domain.GenerationErrorKindOf(err)
		l := logger.FromContext(ctx).WithField("error_kind", string(errKind)).WithError(err)
		if errKind == domain.GenerationDisabled {
			l.Debug("Generation disabled, using fallback")
		} else {
			l.Warn("Generation failed, using fallback")
		}
		return fallback
	}

	if hit {
		logger.CtxDebug(ctx, "Annotation served from cache")
	}
	return value
}
