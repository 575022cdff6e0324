// Package metrics holds the Prometheus collectors for the board.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memehustle_votes_total",
			Help: "Votes applied, by resulting user vote (up, down, none).",
		},
		[]string{"result"},
	)

	BidsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memehustle_bids_total",
			Help: "Bid attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memehustle_enrichment_cache_hits_total",
			Help: "Enrichment cache lookups served from the store.",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memehustle_enrichment_cache_misses_total",
			Help: "Enrichment cache lookups that ran or joined a generation.",
		},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memehustle_generations_total",
			Help: "Generator calls, by annotation kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memehustle_generation_duration_seconds",
			Help:    "Generator call latency, by annotation kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	EnrichmentQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memehustle_enrichment_queue_depth",
			Help: "Enrichment tasks waiting for a worker.",
		},
	)

	EnrichmentOverflow = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memehustle_enrichment_overflow_total",
			Help: "Enrichment tasks run outside the pool because the queue was full.",
		},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memehustle_events_published_total",
			Help: "Realtime events published, by event type.",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memehustle_events_dropped_total",
			Help: "Realtime events dropped for slow subscribers.",
		},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memehustle_realtime_subscribers",
			Help: "Connected realtime subscribers.",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memehustle_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route, method and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			VotesTotal,
			BidsTotal,
			CacheHits,
			CacheMisses,
			GenerationsTotal,
			GenerationDuration,
			EnrichmentQueueDepth,
			EnrichmentOverflow,
			EventsPublished,
			EventsDropped,
			Subscribers,
			RequestDuration,
		)
	})
}

// Middleware records request duration per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/metrics" || route == "/api/v1/stream" {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		start := time.Now()
		c.Next()

		RequestDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus exposition endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
