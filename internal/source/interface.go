package source

import "context"

// Item is one image offered for seeding onto the board.
type Item struct {
	SourceID  string // stable ID within the source
	Title     string
	Tags      []string
	Format    string // jpeg, png, gif, webp
	LocalPath string
}

// Source enumerates seed items page by page.
type Source interface {
	// ID returns a stable identifier for this source.
	ID() string

	// FetchBatch returns up to limit items starting at cursor. An empty
	// nextCursor means there are no more items.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}
