package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/memehustle/internal/api"
	"github.com/timmy/memehustle/internal/auth"
	"github.com/timmy/memehustle/internal/cache"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/metrics"
	"github.com/timmy/memehustle/internal/realtime"
	"github.com/timmy/memehustle/internal/repository"
	"github.com/timmy/memehustle/internal/service"
	"github.com/timmy/memehustle/internal/storage"
)

func main() {
	// Initialize logger first (file rotation outside local environments)
	appLogger := logger.NewFromEnv(logger.LoadFromEnv("memehustle-api"))
	logger.SetDefaultLogger(appLogger)
	defer func() { _ = logger.Sync() }()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to access database handle")
	}
	defer sqlDB.Close()

	listingRepo := repository.NewListingRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Object storage is optional; s3:// media refs need it
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if objectStorage == nil {
		appLogger.Info("Object storage not configured, only http(s) media refs will resolve")
	}

	// Realtime fan-out
	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer)
	board := service.NewFanout(hub, listingRepo, &cfg.Realtime)

	// Enrichment pipeline
	annotations := cache.New(cache.NewStore(ctx, &cfg.Cache))
	generator := service.NewVLMService(&cfg.Generator)
	if !generator.Enabled() {
		appLogger.Warn("Generator API key not set, listings will get fallback annotations")
	} else {
		appLogger.WithFields(logger.Fields{
			"provider": generator.GetProvider(),
			"model":    generator.GetModel(),
		}).Info("Generator enabled")
	}
	pipeline := service.NewEnrichmentService(
		&cfg.Enrichment,
		listingRepo,
		service.NewMediaService(&cfg.Enrichment, objectStorage),
		generator,
		annotations,
		board,
	)
	pipeline.Start(ctx)

	// Core services
	listingService := service.NewListingService(listingRepo, pipeline, board, cfg.Enrichment.DefaultMediaURL)
	ledgerService := service.NewLedgerService(listingRepo, userRepo, annotations, board)
	authService := auth.NewService(userRepo, &cfg.Auth)

	metrics.Register()
	go board.Run(ctx)

	// Setup router
	router := api.SetupRouter(&api.Services{
		Auth:     authService,
		Listings: listingService,
		Ledger:   ledgerService,
		Board:    board,
		DB:       sqlDB,
	}, cfg)

	// Create HTTP server. Request contexts derive from streamCtx so open
	// event streams end when it is cancelled.
	streamCtx, cancelStreams := context.WithCancel(ctx)
	defer cancelStreams()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	cancelStreams()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := pipeline.Wait(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Enrichment tasks still running at exit")
	}

	appLogger.Info("Server exited")
}
