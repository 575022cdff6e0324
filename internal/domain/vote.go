package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// VoteDirection is a user's stance on a listing.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
	// VoteNone is reported back to callers whose vote was toggled off.
	VoteNone VoteDirection = "none"
)

// ParseVoteDirection validates a raw direction string.
func ParseVoteDirection(raw string) (VoteDirection, error) {
	switch VoteDirection(raw) {
	case VoteUp, VoteDown:
		return VoteDirection(raw), nil
	default:
		return "", fmt.Errorf("%w: vote direction must be %q or %q, got %q", ErrInvalidInput, VoteUp, VoteDown, raw)
	}
}

// VoteSet holds at most one vote record per user, keyed by user identity.
type VoteSet map[string]VoteDirection

// Get returns the user's current direction, if any.
func (s VoteSet) Get(userID string) (VoteDirection, bool) {
	d, ok := s[userID]
	return d, ok
}

// Set inserts or replaces the user's vote record.
func (s VoteSet) Set(userID string, d VoteDirection) {
	s[userID] = d
}

// Remove deletes the user's vote record.
func (s VoteSet) Remove(userID string) {
	delete(s, userID)
}

// Value implements the driver.Valuer interface for database serialization.
func (s VoteSet) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *VoteSet) Scan(value interface{}) error {
	if value == nil {
		*s = VoteSet{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan VoteSet")
	}
	set := VoteSet{}
	if len(bytes) > 0 {
		if err := json.Unmarshal(bytes, &set); err != nil {
			return err
		}
	}
	*s = set
	return nil
}

// ApplyVote applies one vote by userID to the listing in place and returns the
// user's resulting direction.
//
//   - no record:             add it, increment the matching counter
//   - same direction:        remove it (toggle-off), decrement floored at 0
//   - opposite direction:    flip it, move one count between counters
func ApplyVote(l *Listing, userID string, d VoteDirection) VoteDirection {
	if l.Votes == nil {
		l.Votes = VoteSet{}
	}

	existing, ok := l.Votes.Get(userID)
	switch {
	case !ok:
		l.Votes.Set(userID, d)
		l.increment(d)
		return d
	case existing == d:
		l.Votes.Remove(userID)
		l.decrement(d)
		return VoteNone
	default:
		l.Votes.Set(userID, d)
		l.decrement(existing)
		l.increment(d)
		return d
	}
}

func (l *Listing) increment(d VoteDirection) {
	if d == VoteUp {
		l.Upvotes++
	} else {
		l.Downvotes++
	}
}

func (l *Listing) decrement(d VoteDirection) {
	if d == VoteUp {
		l.Upvotes = max(0, l.Upvotes-1)
	} else {
		l.Downvotes = max(0, l.Downvotes-1)
	}
}
