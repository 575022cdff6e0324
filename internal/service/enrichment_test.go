package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/memehustle/internal/cache"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/repository"
)

// fakeMedia serves a fixed image. Fetches after the first one wait for
// laterDelay when it is set.
type fakeMedia struct {
	err        error
	laterDelay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeMedia) Fetch(_ context.Context, ref string) (*Media, error) {
	f.mu.Lock()
	f.calls++
	slow := f.calls > 1 && f.laterDelay > 0
	f.mu.Unlock()
	if slow {
		time.Sleep(f.laterDelay)
	}

	if f.err != nil {
		return nil, &domain.MediaFetchError{Ref: ref, Err: f.err}
	}
	return &Media{Ref: ref, Data: []byte("img"), MIMEType: "image/png"}, nil
}

// fakeGenerator answers "<kind> for <topic>" and counts calls per kind. When
// release is set, every call blocks until it is closed.
type fakeGenerator struct {
	mu          sync.Mutex
	calls       map[cache.Kind]int
	placeholder bool
	err         error
	entered     chan cache.Kind
	release     chan struct{}
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		calls:   make(map[cache.Kind]int),
		entered: make(chan cache.Kind, 16),
	}
}

func (g *fakeGenerator) Generate(ctx context.Context, media *Media, prompt string) (string, error) {
	kind := cache.KindMood
	if strings.Contains(prompt, "caption") {
		kind = cache.KindCaption
	}

	g.mu.Lock()
	g.calls[kind]++
	if media.Placeholder {
		g.placeholder = true
	}
	g.mu.Unlock()
	g.entered <- kind

	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	topic := prompt[strings.Index(prompt, "keywords: ")+len("keywords: "):]
	topic = topic[:strings.Index(topic, ".")]
	return string(kind) + " for " + topic, nil
}

func (g *fakeGenerator) count(kind cache.Kind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[kind]
}

type pipelineFixture struct {
	listings  *repository.ListingRepository
	store     *cache.MemoryStore
	cache     *cache.Cache
	events    *recordingBroadcaster
	gen       *fakeGenerator
	media     *fakeMedia
	pipeline  *EnrichmentService
	listingSv *ListingService
	owner     domain.Identity
}

func newPipelineFixture(t *testing.T, queueSize int) *pipelineFixture {
	listings, users := openTestRepos(t)
	store := cache.NewMemoryStore()
	c := cache.New(store)
	events := &recordingBroadcaster{}
	gen := newFakeGenerator()
	media := &fakeMedia{}

	pipeline := NewEnrichmentService(&config.EnrichmentConfig{
		Workers:         2,
		QueueSize:       queueSize,
		GenerateTimeout: 5 * time.Second,
	}, listings, media, gen, c, events)

	return &pipelineFixture{
		listings:  listings,
		store:     store,
		cache:     c,
		events:    events,
		gen:       gen,
		media:     media,
		pipeline:  pipeline,
		listingSv: NewListingService(listings, pipeline, events, "https://example.com/default.png"),
		owner:     createUser(t, users, "owner", "owner"),
	}
}

func (f *pipelineFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.pipeline.Wait(ctx))
}

func TestCreateListingIsEnrichedInBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.pipeline.Start(ctx)

	l, err := f.listingSv.CreateListing(ctx, f.owner, CreateListingRequest{
		Title: "  Doge  ",
		Tags:  []string{"doge", " ", "wow"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Doge", l.Title)
	assert.Equal(t, "https://example.com/default.png", l.MediaRef)
	assert.Equal(t, domain.StringArray{"doge", "wow"}, l.Tags)
	assert.Equal(t, domain.AnnotationPending, l.Caption)
	assert.Equal(t, []string{l.ID}, f.events.created)

	f.wait(t)

	stored, err := f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "caption for doge, wow", stored.Caption)
	assert.Equal(t, "mood for doge, wow", stored.Mood)
	assert.Equal(t, domain.AnnotationStateGenerated, stored.AnnotationState())

	last := f.events.lastMutation()
	require.NotNil(t, last)
	assert.Equal(t, "caption for doge, wow", last.Caption)

	v, ok, _ := f.store.Get(ctx, cache.Key(l.ID, cache.KindCaption))
	require.True(t, ok)
	assert.Equal(t, "caption for doge, wow", v)
}

func TestCreateListingRequiresTitle(t *testing.T) {
	f := newPipelineFixture(t, 8)
	_, err := f.listingSv.CreateListing(context.Background(), f.owner, CreateListingRequest{Title: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmptyTagsUseDefaultTopic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.pipeline.Start(ctx)

	l, err := f.listingSv.CreateListing(ctx, f.owner, CreateListingRequest{Title: "x"})
	require.NoError(t, err)
	f.wait(t)

	stored, err := f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "caption for general meme", stored.Caption)
}

func TestGenerationFailureFallsBackWithoutCaching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.gen.err = &domain.GenerationError{Kind: domain.GenerationQuota, Err: errors.New("429")}
	f.pipeline.Start(ctx)

	l, err := f.listingSv.CreateListing(ctx, f.owner, CreateListingRequest{Title: "x", Tags: []string{"cat"}})
	require.NoError(t, err)
	f.wait(t)

	stored, err := f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FallbackCaption, stored.Caption)
	assert.Equal(t, domain.FallbackMood, stored.Mood)
	assert.Equal(t, domain.AnnotationStateDegraded, stored.AnnotationState())
	assert.Equal(t, 0, f.store.Len())

	// A later refresh with a healthy generator recovers.
	f.gen.mu.Lock()
	f.gen.err = nil
	f.gen.mu.Unlock()
	_, err = f.listingSv.RequestReannotation(ctx, l.ID)
	require.NoError(t, err)
	f.wait(t)

	stored, err = f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "caption for cat", stored.Caption)
}

func TestDisabledGeneratorFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.pipeline.generator = NewVLMService(&config.GeneratorConfig{Model: "m"})
	f.pipeline.Start(ctx)

	l, err := f.listingSv.CreateListing(ctx, f.owner, CreateListingRequest{Title: "x"})
	require.NoError(t, err)
	f.wait(t)

	stored, err := f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FallbackCaption, stored.Caption)
	assert.Equal(t, domain.FallbackMood, stored.Mood)
}

func TestMediaFailureUsesPlaceholder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.media.err = errors.New("404")
	f.pipeline.Start(ctx)

	l, err := f.listingSv.CreateListing(ctx, f.owner, CreateListingRequest{Title: "x", Tags: []string{"t"}})
	require.NoError(t, err)
	f.wait(t)

	assert.True(t, f.gen.placeholder)
	stored, err := f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "caption for t", stored.Caption)
}

func TestRefreshMarksPendingAndInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, 8)

	l := domain.NewListing("L", "x", "https://example.com/a.png", nil, f.owner)
	l.Caption, l.Mood = "old caption", "old mood"
	require.NoError(t, f.listings.Insert(ctx, l))
	require.NoError(t, f.store.Set(ctx, cache.Key("L", cache.KindCaption), "old caption"))

	got, err := f.listingSv.RequestReannotation(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, domain.AnnotationPending, got.Caption)
	assert.Equal(t, domain.AnnotationPending, got.Mood)
	assert.Equal(t, 0, f.store.Len())

	last := f.events.lastMutation()
	require.NotNil(t, last)
	assert.Equal(t, domain.AnnotationStatePending, last.AnnotationState())

	_, err = f.listingSv.RequestReannotation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentRefreshesShareOneGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.gen.release = make(chan struct{})

	l := domain.NewListing("L", "x", "https://example.com/a.png", []string{"frog"}, f.owner)
	require.NoError(t, f.listings.Insert(ctx, l))

	_, err := f.listingSv.RequestReannotation(ctx, "L")
	require.NoError(t, err)
	_, err = f.listingSv.RequestReannotation(ctx, "L")
	require.NoError(t, err)

	f.pipeline.Start(ctx)
	<-f.gen.entered
	<-f.gen.entered
	time.Sleep(50 * time.Millisecond)
	close(f.gen.release)
	f.wait(t)

	assert.Equal(t, 1, f.gen.count(cache.KindCaption))
	assert.Equal(t, 1, f.gen.count(cache.KindMood))

	stored, err := f.listings.FindByID(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, "caption for frog", stored.Caption)
	assert.Equal(t, "mood for frog", stored.Mood)
}

func TestDeleteDuringGenerationDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.gen.release = make(chan struct{})
	f.pipeline.Start(ctx)

	l, err := f.listingSv.CreateListing(ctx, f.owner, CreateListingRequest{Title: "x"})
	require.NoError(t, err)
	<-f.gen.entered

	ledger := NewLedgerService(f.listings, nil, f.cache, f.events)
	require.NoError(t, ledger.Delete(ctx, l.ID, f.owner.UserID))

	close(f.gen.release)
	f.wait(t)

	_, err = f.listings.FindByID(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.events.mutations())
	assert.Equal(t, 0, f.store.Len())
}

func TestFullQueueRunsTaskOutsidePool(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, 0)

	// No workers are started; the unbuffered queue is always full.
	l, err := f.listingSv.CreateListing(ctx, f.owner, CreateListingRequest{Title: "x", Tags: []string{"q"}})
	require.NoError(t, err)
	f.wait(t)

	stored, err := f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "caption for q", stored.Caption)
}

func TestReannotateBacklog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)

	done := domain.NewListing("done", "x", "https://example.com/a.png", []string{"cat"}, f.owner)
	done.Caption, done.Mood = "a cat", "smug"
	degraded := domain.NewListing("degraded", "x", "https://example.com/b.png", []string{"dog"}, f.owner)
	degraded.Caption, degraded.Mood = domain.FallbackCaption, "happy"
	pending := domain.NewListing("pending", "x", "https://example.com/c.png", []string{"owl"}, f.owner)
	for _, l := range []*domain.Listing{done, degraded, pending} {
		require.NoError(t, f.listings.Insert(ctx, l))
	}

	f.pipeline.Start(ctx)
	stats, err := f.listingSv.ReannotateBacklog(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Scheduled)
	assert.Zero(t, stats.Failed)
	f.wait(t)

	got, err := f.listings.FindByID(ctx, "degraded")
	require.NoError(t, err)
	assert.Equal(t, "caption for dog", got.Caption)
	assert.Equal(t, "mood for dog", got.Mood)

	got, err = f.listings.FindByID(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, "caption for owl", got.Caption)

	got, err = f.listings.FindByID(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, "a cat", got.Caption)
}

func TestRefreshDuringGenerationReusesInFlightResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 8)
	f.gen.release = make(chan struct{})
	f.media.laterDelay = 200 * time.Millisecond

	l := domain.NewListing("L", "x", "https://example.com/a.png", []string{"frog"}, f.owner)
	require.NoError(t, f.listings.Insert(ctx, l))
	f.pipeline.Start(ctx)

	_, err := f.listingSv.RequestReannotation(ctx, "L")
	require.NoError(t, err)
	<-f.gen.entered
	<-f.gen.entered

	_, err = f.listingSv.RequestReannotation(ctx, "L")
	require.NoError(t, err)
	close(f.gen.release)
	f.wait(t)

	assert.Equal(t, 1, f.gen.count(cache.KindCaption))
	assert.Equal(t, 1, f.gen.count(cache.KindMood))

	stored, err := f.listings.FindByID(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, "caption for frog", stored.Caption)
	assert.Equal(t, "mood for frog", stored.Mood)
}
