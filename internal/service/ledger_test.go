package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/memehustle/internal/cache"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/repository"
)

type ledgerFixture struct {
	listings *repository.ListingRepository
	users    *repository.UserRepository
	store    *cache.MemoryStore
	events   *recordingBroadcaster
	ledger   *LedgerService
	owner    domain.Identity
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	listings, users := openTestRepos(t)
	store := cache.NewMemoryStore()
	events := &recordingBroadcaster{}
	f := &ledgerFixture{
		listings: listings,
		users:    users,
		store:    store,
		events:   events,
		ledger:   NewLedgerService(listings, users, cache.New(store), events),
	}
	f.owner = createUser(t, users, "owner", "owner")
	return f
}

func (f *ledgerFixture) listing(t *testing.T, id string) *domain.Listing {
	t.Helper()
	l := domain.NewListing(id, "t", "https://example.com/x.png", nil, f.owner)
	l.CreatedAt = time.Now()
	require.NoError(t, f.listings.Insert(context.Background(), l))
	return l
}

func TestVoteToggleAndFlip(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.listing(t, "L")

	res, err := f.ledger.Vote(ctx, "L", "u1", "up")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upvotes)
	assert.Equal(t, domain.VoteUp, res.UserVote)

	res, err = f.ledger.Vote(ctx, "L", "u1", "down")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Upvotes)
	assert.Equal(t, 1, res.Downvotes)
	assert.Equal(t, domain.VoteDown, res.UserVote)

	res, err = f.ledger.Vote(ctx, "L", "u1", "down")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Upvotes)
	assert.Equal(t, 0, res.Downvotes)
	assert.Equal(t, domain.VoteNone, res.UserVote)

	assert.Len(t, f.events.mutations(), 3)
	assert.Equal(t, 3, f.events.recomputes)
}

func TestVoteErrors(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.listing(t, "L")

	_, err := f.ledger.Vote(ctx, "L", "u1", "sideways")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.ledger.Vote(ctx, "missing", "u1", "up")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.events.mutations())
}

func TestConcurrentVotesKeepCountersConsistent(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.listing(t, "L")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := "up"
			if i%2 == 1 {
				dir = "down"
			}
			_, err := f.ledger.Vote(ctx, "L", fmt.Sprintf("u%d", i), dir)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	l, err := f.listings.FindByID(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, 3, l.Upvotes)
	assert.Equal(t, 2, l.Downvotes)
	assert.Len(t, l.Votes, 5)
}

func TestBidMustStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.listing(t, "L")
	bidder := createUser(t, f.users, "b1", "whale")

	l, err := f.ledger.Bid(ctx, "L", bidder.UserID, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), l.HighestBid)
	assert.Equal(t, "whale", l.HighestBidder)

	_, err = f.ledger.Bid(ctx, "L", bidder.UserID, 50)
	require.ErrorIs(t, err, domain.ErrBidTooLow)
	var tooLow *domain.BidTooLowError
	require.True(t, errors.As(err, &tooLow))
	assert.Equal(t, int64(50), tooLow.Current)

	_, err = f.ledger.Bid(ctx, "L", bidder.UserID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.ledger.Bid(ctx, "L", bidder.UserID, -3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.ledger.Bid(ctx, "missing", bidder.UserID, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBidUnknownBidder(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.listing(t, "L")

	_, err := f.ledger.Bid(ctx, "L", "ghost", 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	l, err := f.listings.FindByID(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, int64(0), l.HighestBid)
	assert.Equal(t, domain.NoBidder, l.HighestBidder)
}

func TestConcurrentBidsKeepHighest(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.listing(t, "L")
	bidder := createUser(t, f.users, "b1", "whale")

	var wg sync.WaitGroup
	for _, amount := range []int64{10, 40, 20, 30} {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, _ = f.ledger.Bid(ctx, "L", bidder.UserID, amount)
		}(amount)
	}
	wg.Wait()

	l, err := f.listings.FindByID(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, int64(40), l.HighestBid)
}

func TestDeleteOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.listing(t, "L")
	require.NoError(t, f.store.Set(ctx, cache.Key("L", cache.KindCaption), "cached"))
	require.NoError(t, f.store.Set(ctx, cache.Key("L", cache.KindMood), "cached"))

	err := f.ledger.Delete(ctx, "L", "someone-else")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.ledger.Delete(ctx, "L", f.owner.UserID))
	assert.Equal(t, []string{"L"}, f.events.deleted)
	assert.Equal(t, 0, f.store.Len())

	err = f.ledger.Delete(ctx, "L", f.owner.UserID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
