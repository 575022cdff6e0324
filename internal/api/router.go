package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memehustle/internal/api/handler"
	"github.com/timmy/memehustle/internal/api/middleware"
	"github.com/timmy/memehustle/internal/auth"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/metrics"
	"github.com/timmy/memehustle/internal/service"
)

// Services bundles what the HTTP layer serves.
type Services struct {
	Auth     *auth.Service
	Listings *service.ListingService
	Ledger   *service.LedgerService
	Board    *service.Fanout
	// DB is pinged by the health check. Optional.
	DB handler.Pinger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg *config.Config) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.CORS))
	r.Use(metrics.Middleware())

	// Create handlers
	healthHandler := handler.NewHealthHandler(svc.DB)
	authHandler := handler.NewAuthHandler(svc.Auth)
	listingHandler := handler.NewListingHandler(svc.Listings, svc.Ledger, svc.Board)
	streamHandler := handler.NewStreamHandler(svc.Board, cfg.Realtime.KeepAlive)
	adminHandler := handler.NewAdminHandler(svc.Listings)

	requireAuth := middleware.RequireAuth(svc.Auth)
	voteLimit := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Max:    cfg.RateLimit.VotesPerMinute,
		Window: time.Minute,
	})
	bidLimit := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Max:    cfg.RateLimit.BidsPerMinute,
		Window: time.Minute,
	})

	// Health check and metrics
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", metrics.Handler())

	// Accounts
	accounts := r.Group("/api/auth")
	{
		accounts.POST("/register", authHandler.Register)
		accounts.POST("/login", authHandler.Login)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Board reads
		v1.GET("/listings", listingHandler.List)
		v1.GET("/listings/:id", listingHandler.Get)
		v1.GET("/leaderboard", listingHandler.Leaderboard)
		v1.GET("/stream", streamHandler.Stream)

		// Marketplace actions
		v1.POST("/listings", requireAuth, listingHandler.Create)
		v1.POST("/listings/:id/vote", requireAuth, voteLimit.Handler(), listingHandler.Vote)
		v1.POST("/listings/:id/bid", requireAuth, bidLimit.Handler(), listingHandler.Bid)
		v1.POST("/listings/:id/caption", requireAuth, listingHandler.Reannotate)
		v1.DELETE("/listings/:id", requireAuth, listingHandler.Delete)
	}

	// Maintenance
	admin := r.Group("/api/admin", requireAuth, middleware.RequireAdmin(cfg.Auth.AdminUsers))
	{
		admin.POST("/reannotate", adminHandler.TriggerReannotate)
		admin.GET("/reannotate/status", adminHandler.GetReannotateStatus)
	}

	return r
}
