package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel values written to a listing before enrichment or bidding has happened.
const (
	AnnotationPending = "pending"
	NoBidder          = "none"
)

// Fallback annotations used when generation fails or is disabled.
const (
	FallbackCaption = "caption generation unavailable"
	FallbackMood    = "mood generation unavailable"
)

// AnnotationState describes where a listing's caption/mood pair is in its lifecycle.
type AnnotationState string

const (
	AnnotationStatePending   AnnotationState = "pending"
	AnnotationStateGenerated AnnotationState = "generated"
	AnnotationStateDegraded  AnnotationState = "degraded"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan StringArray")
	}
	return json.Unmarshal(bytes, a)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unexpected column type")
	}
}

// Listing is a marketplace item carrying votes, the current highest bid and
// machine-generated annotations.
type Listing struct {
	ID            string      `gorm:"type:text;primaryKey" json:"id"`
	Title         string      `gorm:"type:text;not null" json:"title"`
	MediaRef      string      `gorm:"type:text;not null" json:"media_ref"`
	Tags          StringArray `gorm:"type:text" json:"tags"`
	Caption       string      `gorm:"type:text" json:"caption"`
	Mood          string      `gorm:"type:text" json:"mood"`
	Upvotes       int         `gorm:"not null;default:0;index:idx_listings_rank,priority:1" json:"upvotes"`
	Downvotes     int         `gorm:"not null;default:0" json:"downvotes"`
	HighestBid    int64       `gorm:"not null;default:0" json:"highest_bid"`
	HighestBidder string      `gorm:"type:text" json:"highest_bidder"`
	OwnerID       string      `gorm:"type:text;not null;index:idx_listings_owner" json:"owner_id"`
	OwnerName     string      `gorm:"type:text" json:"owner_name"`
	Votes         VoteSet     `gorm:"type:text" json:"-"`
	Version       int64       `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time   `gorm:"index:idx_listings_rank,priority:2" json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Listing.
func (Listing) TableName() string {
	return "listings"
}

// NewListing builds a listing in its initial state: pending annotations,
// zero counters and no bids.
func NewListing(id, title, mediaRef string, tags []string, owner Identity) *Listing {
	return &Listing{
		ID:            id,
		Title:         title,
		MediaRef:      mediaRef,
		Tags:          StringArray(tags),
		Caption:       AnnotationPending,
		Mood:          AnnotationPending,
		HighestBidder: NoBidder,
		OwnerID:       owner.UserID,
		OwnerName:     owner.DisplayName,
		Votes:         VoteSet{},
	}
}

// AnnotationState reports the annotation lifecycle state derived from the
// caption and mood fields.
func (l *Listing) AnnotationState() AnnotationState {
	if l.Caption == AnnotationPending || l.Mood == AnnotationPending {
		return AnnotationStatePending
	}
	if l.Caption == FallbackCaption || l.Mood == FallbackMood {
		return AnnotationStateDegraded
	}
	return AnnotationStateGenerated
}

// MarkPending resets both annotations to the pending sentinel.
func (l *Listing) MarkPending() {
	l.Caption = AnnotationPending
	l.Mood = AnnotationPending
}
