package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/source/localdir"
)

func TestSeedUploadsAndListsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPipelineFixture(t, 16)
	f.pipeline.Start(ctx)

	dir := t.TempDir()
	png := PlaceholderMedia().Data
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "neon"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "neon", "city_lights.png"), png, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "neon", "copy_of_city.png"), png, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o644))

	objects := memoryObjects{}
	seeder := NewSeedService(f.listingSv, f.listings, objects, &SeedConfig{Workers: 1, BatchSize: 2})

	stats, err := seeder.Seed(ctx, localdir.NewAdapter(dir), SeedOptions{Owner: f.owner})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalItems)
	assert.Equal(t, int64(1), stats.CreatedItems)
	assert.Equal(t, int64(1), stats.SkippedItems)
	assert.Equal(t, int64(1), stats.FailedItems)
	assert.Len(t, objects, 1)
	f.wait(t)

	listed, err := f.listingSv.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "city lights", listed[0].Title)
	assert.Equal(t, domain.StringArray{"neon", "city", "lights"}, listed[0].Tags)

	// A second run lists nothing new.
	stats, err = seeder.Seed(ctx, localdir.NewAdapter(dir), SeedOptions{Owner: f.owner})
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.CreatedItems)
	assert.Equal(t, int64(2), stats.SkippedItems)
	f.wait(t)
}

func TestSeedRequiresStorageAndOwner(t *testing.T) {
	f := newPipelineFixture(t, 4)

	_, err := NewSeedService(f.listingSv, f.listings, nil, &SeedConfig{}).
		Seed(context.Background(), localdir.NewAdapter(t.TempDir()), SeedOptions{Owner: f.owner})
	assert.Error(t, err)

	_, err = NewSeedService(f.listingSv, f.listings, memoryObjects{}, &SeedConfig{}).
		Seed(context.Background(), localdir.NewAdapter(t.TempDir()), SeedOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
