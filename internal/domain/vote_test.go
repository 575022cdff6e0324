package domain

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyVote_Transitions(t *testing.T) {
	tests := []struct {
		name          string
		steps         []VoteDirection
		wantUp        int
		wantDown      int
		wantLastState VoteDirection
	}{
		{name: "first up", steps: []VoteDirection{VoteUp}, wantUp: 1, wantDown: 0, wantLastState: VoteUp},
		{name: "up then up toggles off", steps: []VoteDirection{VoteUp, VoteUp}, wantUp: 0, wantDown: 0, wantLastState: VoteNone},
		{name: "up then down flips", steps: []VoteDirection{VoteUp, VoteDown}, wantUp: 0, wantDown: 1, wantLastState: VoteDown},
		{name: "down then up flips", steps: []VoteDirection{VoteDown, VoteUp}, wantUp: 1, wantDown: 0, wantLastState: VoteUp},
		{name: "down down down", steps: []VoteDirection{VoteDown, VoteDown, VoteDown}, wantUp: 0, wantDown: 1, wantLastState: VoteDown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewListing("l1", "title", "ref", nil, Identity{UserID: "owner"})
			var state VoteDirection
			for _, d := range tc.steps {
				state = ApplyVote(l, "alice", d)
			}
			assert.Equal(t, tc.wantUp, l.Upvotes)
			assert.Equal(t, tc.wantDown, l.Downvotes)
			assert.Equal(t, tc.wantLastState, state)
		})
	}
}

func TestApplyVote_FloorsAtZero(t *testing.T) {
	l := NewListing("l1", "title", "ref", nil, Identity{UserID: "owner"})
	// Counter drifted below the record set, e.g. after a manual fix-up.
	l.Votes.Set("alice", VoteUp)
	l.Upvotes = 0

	state := ApplyVote(l, "alice", VoteUp)
	assert.Equal(t, VoteNone, state)
	assert.Equal(t, 0, l.Upvotes)
}

func TestApplyVote_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []string{"alice", "bob", "carol"}
	l := NewListing("l1", "title", "ref", nil, Identity{UserID: "owner"})

	for i := 0; i < 500; i++ {
		d := VoteUp
		if rng.Intn(2) == 0 {
			d = VoteDown
		}
		ApplyVote(l, users[rng.Intn(len(users))], d)

		require.GreaterOrEqual(t, l.Upvotes, 0)
		require.GreaterOrEqual(t, l.Downvotes, 0)

		up, down := 0, 0
		for _, dir := range l.Votes {
			if dir == VoteUp {
				up++
			} else {
				down++
			}
		}
		require.Equal(t, up, l.Upvotes, "upvotes must match vote records")
		require.Equal(t, down, l.Downvotes, "downvotes must match vote records")
		require.LessOrEqual(t, len(l.Votes), len(users))
	}
}

func TestParseVoteDirection(t *testing.T) {
	d, err := ParseVoteDirection("up")
	require.NoError(t, err)
	assert.Equal(t, VoteUp, d)

	_, err = ParseVoteDirection("sideways")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestVoteSet_RoundTripThroughColumn(t *testing.T) {
	set := VoteSet{"alice": VoteUp, "bob": VoteDown}
	raw, err := set.Value()
	require.NoError(t, err)

	var got VoteSet
	require.NoError(t, got.Scan(raw))
	assert.Equal(t, set, got)

	var empty VoteSet
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
}

func TestListing_AnnotationState(t *testing.T) {
	l := NewListing("l1", "title", "ref", nil, Identity{UserID: "owner"})
	assert.Equal(t, AnnotationStatePending, l.AnnotationState())

	l.Caption, l.Mood = "so true", "smug"
	assert.Equal(t, AnnotationStateGenerated, l.AnnotationState())

	l.Mood = FallbackMood
	assert.Equal(t, AnnotationStateDegraded, l.AnnotationState())

	l.MarkPending()
	assert.Equal(t, AnnotationStatePending, l.AnnotationState())
}

func TestBidTooLowError_MatchesSentinel(t *testing.T) {
	var err error = &BidTooLowError{Current: 100}
	assert.True(t, errors.Is(err, ErrBidTooLow))

	var bidErr *BidTooLowError
	require.True(t, errors.As(err, &bidErr))
	assert.Equal(t, int64(100), bidErr.Current)
}
