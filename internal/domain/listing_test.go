package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingJSONHidesVoters(t *testing.T) {
	l := NewListing("L", "t", "ref", nil, Identity{UserID: "owner", DisplayName: "owner"})
	ApplyVote(l, "alice", VoteUp)
	ApplyVote(l, "bob", VoteDown)

	raw, err := json.Marshal(l)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "votes")
	assert.NotContains(t, string(raw), "alice")
	assert.EqualValues(t, 1, fields["upvotes"])
	assert.EqualValues(t, 1, fields["downvotes"])
}
