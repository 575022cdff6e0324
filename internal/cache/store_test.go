package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/memehustle/internal/config"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t, 0)

	_, ok, err := s.Get(ctx, "caption:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "caption:1", "hello"))
	v, ok, err := s.Get(ctx, "caption:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	// Keys are namespaced in the shared keyspace.
	assert.True(t, mr.Exists("enrich:caption:1"))
	assert.False(t, mr.Exists("caption:1"))
	raw, err := mr.Get("enrich:caption:1")
	require.NoError(t, err)
	assert.Equal(t, "hello", raw)

	require.NoError(t, s.Set(ctx, "mood:1", "smug"))
	require.NoError(t, s.Delete(ctx, "caption:1", "mood:1", "missing"))
	assert.False(t, mr.Exists("enrich:caption:1"))
	assert.False(t, mr.Exists("enrich:mood:1"))
	require.NoError(t, s.Delete(ctx))
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t, time.Minute)

	require.NoError(t, s.Set(ctx, "caption:1", "hello"))
	assert.Equal(t, time.Minute, mr.TTL("enrich:caption:1"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, "caption:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreBacksCache(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t, 0)
	c := New(s)

	calls := 0
	gen := func(context.Context) (string, error) {
		calls++
		return "a caption", nil
	}
	key := Key("L", KindCaption)
	for i := 0; i < 2; i++ {
		v, hit, err := c.GetOrGenerate(ctx, key, gen)
		require.NoError(t, err)
		assert.Equal(t, "a caption", v)
		assert.Equal(t, i > 0, hit)
	}
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists(redisKeyPrefix+key))

	require.NoError(t, c.PurgeListing(ctx, "L"))
	assert.False(t, mr.Exists(redisKeyPrefix+key))
}

func TestNewStoreSelectsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewStore(context.Background(), &config.CacheConfig{
		Backend:  "redis",
		RedisURL: "redis://" + mr.Addr(),
		TTL:      time.Hour,
	})
	require.IsType(t, &RedisStore{}, s)
	rs := s.(*RedisStore)
	t.Cleanup(func() { _ = rs.rdb.Close() })
	assert.Equal(t, time.Hour, rs.ttl)
}

func TestNewStoreFallsBackWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	s := NewStore(context.Background(), &config.CacheConfig{
		Backend:  "redis",
		RedisURL: "redis://" + addr,
	})
	assert.IsType(t, &MemoryStore{}, s)
}
