package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig defines the limit for a route.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	KeyFn  func(c *gin.Context) string
}

type window struct {
	count int
	end   time.Time
}

// RateLimiter is an in-memory fixed-window limiter.
type RateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*window
	config    RateLimitConfig
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a limiter. A non-positive Max disables limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyFn == nil {
		cfg.KeyFn = KeyByUser
	}
	return &RateLimiter{
		entries: make(map[string]*window),
		config:  cfg,
		now:     time.Now,
	}
}

// Handler enforces the limit, answering 429 once a key is exhausted.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.Max <= 0 {
			c.Next()
			return
		}

		allowed, remaining, reset := rl.take(rl.config.KeyFn(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retryAfter := int(reset.Sub(rl.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

// Allow consumes one request for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	allowed, _, _ := rl.take(key)
	return allowed
}

func (rl *RateLimiter) take(key string) (allowed bool, remaining int, reset time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	w, ok := rl.entries[key]
	if !ok || !now.Before(w.end) {
		w = &window{end: now.Add(rl.config.Window)}
		rl.entries[key] = w
	}
	w.count++
	return w.count <= rl.config.Max, max(rl.config.Max-w.count, 0), w.end
}

// sweep drops expired windows at most once per window length.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.config.Window {
		return
	}
	rl.lastSweep = now
	for key, w := range rl.entries {
		if !now.Before(w.end) {
			delete(rl.entries, key)
		}
	}
}

// KeyByUser limits per authenticated user, falling back to the client IP.
func KeyByUser(c *gin.Context) string {
	if id, ok := Identity(c); ok {
		return "user:" + id.UserID
	}
	return "ip:" + c.ClientIP()
}

// KeyByIP limits per client IP.
func KeyByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}
