package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/repository"
)

func openTestRepos(t *testing.T) (*repository.ListingRepository, *repository.UserRepository) {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "service.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewListingRepository(db), repository.NewUserRepository(db)
}

func createUser(t *testing.T, users *repository.UserRepository, id, name string) domain.Identity {
	t.Helper()
	u := &domain.User{ID: id, Username: name, PasswordHash: "x"}
	require.NoError(t, users.Create(context.Background(), u))
	return u.Identity()
}

// recordingBroadcaster captures everything the services announce.
type recordingBroadcaster struct {
	mu         sync.Mutex
	created    []string
	mutated    []*domain.Listing
	deleted    []string
	recomputes int
}

func (r *recordingBroadcaster) BroadcastCreation(_ context.Context, l *domain.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, l.ID)
}

func (r *recordingBroadcaster) BroadcastMutation(_ context.Context, l *domain.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.mutated = append(r.mutated, &cp)
}

func (r *recordingBroadcaster) BroadcastDeletion(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

func (r *recordingBroadcaster) RequestRecompute() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recomputes++
}

func (r *recordingBroadcaster) mutations() []*domain.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Listing, len(r.mutated))
	copy(out, r.mutated)
	return out
}

func (r *recordingBroadcaster) lastMutation() *domain.Listing {
	m := r.mutations()
	if len(m) == 0 {
		return nil
	}
	return m[len(m)-1]
}
