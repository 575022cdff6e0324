package cli

import (
	"context"
	"fmt"

	"github.com/timmy/memehustle/internal/cache"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/realtime"
	"github.com/timmy/memehustle/internal/repository"
	"github.com/timmy/memehustle/internal/service"
	"github.com/timmy/memehustle/internal/storage"
	"gorm.io/gorm"
)

// app is the service graph a command works with. Events are published to a
// hub without subscribers; connected viewers pick up the results through
// the API server's periodic leaderboard and on their next fetch.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	listings *repository.ListingRepository
	users    *repository.UserRepository
	storage  storage.ObjectStorage
	pipeline *service.EnrichmentService
	service  *service.ListingService
	stop     context.CancelFunc
}

func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	listings := repository.NewListingRepository(db)
	board := service.NewFanout(realtime.NewHub(cfg.Realtime.SubscriberBuffer), listings, &cfg.Realtime)

	runCtx, stop := context.WithCancel(ctx)
	pipeline := service.NewEnrichmentService(
		&cfg.Enrichment,
		listings,
		service.NewMediaService(&cfg.Enrichment, objectStorage),
		service.NewVLMService(&cfg.Generator),
		cache.New(cache.NewStore(runCtx, &cfg.Cache)),
		board,
	)
	pipeline.Start(runCtx)

	return &app{
		cfg:      cfg,
		db:       db,
		listings: listings,
		users:    repository.NewUserRepository(db),
		storage:  objectStorage,
		pipeline: pipeline,
		service:  service.NewListingService(listings, pipeline, board, cfg.Enrichment.DefaultMediaURL),
		stop:     stop,
	}, nil
}

// Close stops the workers and releases the database.
func (a *app) Close() {
	a.stop()
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
