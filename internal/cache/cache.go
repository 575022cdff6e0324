// Package cache memoizes generated annotations and guarantees that at most one
// generation per key runs at a time.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Kind names a generated annotation.
type Kind string

const (
	KindCaption Kind = "caption"
	KindMood    Kind = "mood"
)

// Kinds lists every annotation kind kept per listing.
var Kinds = []Kind{KindCaption, KindMood}

// Key builds the cache key for one annotation of a listing.
func Key(listingID string, kind Kind) string {
	return fmt.Sprintf("%s:%s", kind, listingID)
}

// GenerateFunc produces the value for a missing key.
type GenerateFunc func(ctx context.Context) (string, error)

// Cache is a single-flight memoizer in front of a Store.
type Cache struct {
	store Store
	group singleflight.Group

	// epochs advance when a listing is purged so a flight started before the
	// purge does not write its result back afterwards.
	mu     sync.Mutex
	epochs map[string]uint64
}

// New creates a Cache over store.
func New(store Store) *Cache {
	return &Cache{
		store:  store,
		epochs: make(map[string]uint64),
	}
}

// GetOrGenerate returns the stored value for key, or runs fn to produce it.
// Concurrent callers for the same key share one fn invocation. Successful
// results are stored; failures are returned to every waiter and never stored.
// hit reports whether the value came from the store.
func (c *Cache) GetOrGenerate(ctx context.Context, key string, fn GenerateFunc) (value string, hit bool, err error) {
	if v, ok := c.lookup(ctx, key); ok {
		metrics.CacheHits.Inc()
		return v, true, nil
	}
	metrics.CacheMisses.Inc()

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A flight that just finished may have stored the value between our
		// lookup and joining the group.
		if v, ok := c.lookup(ctx, key); ok {
			return v, nil
		}

		epoch := c.epoch(key)
		v, err := fn(ctx)
		if err != nil {
			return "", err
		}
		if c.epoch(key) == epoch {
			if err := c.store.Set(ctx, key, v); err != nil {
				logger.CtxWarn(ctx, "Failed to store cache entry %s: %v", key, err)
			}
		}
		return v, nil
	})
	if err != nil {
		return "", false, err
	}
	return res.(string), false, nil
}

// Invalidate removes stored entries. A flight already running for one of the
// keys still stores its result, so callers arriving after it lands are served
// from the store instead of generating again.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	return c.store.Delete(ctx, keys...)
}

// PurgeListing drops every annotation entry of a deleted listing. Running
// flights are detached and will not store their results.
func (c *Cache) PurgeListing(ctx context.Context, listingID string) error {
	keys := make([]string, 0, len(Kinds))
	for _, kind := range Kinds {
		keys = append(keys, Key(listingID, kind))
	}

	c.mu.Lock()
	for _, k := range keys {
		c.epochs[k]++
	}
	c.mu.Unlock()

	err := c.store.Delete(ctx, keys...)
	for _, k := range keys {
		c.group.Forget(k)
	}
	return err
}

func (c *Cache) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		logger.CtxWarn(ctx, "Cache lookup failed for %s: %v", key, err)
		return "", false
	}
	return v, ok
}

func (c *Cache) epoch(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[key]
}
