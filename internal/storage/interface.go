package storage

import (
	"context"
	"io"
	"strings"
)

// RefScheme prefixes media references that point into object storage.
const RefScheme = "s3://"

// ObjectStorage is the subset of object storage operations the board needs:
// uploading seeded media and reading it back during enrichment.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL for accessing an object
	GetURL(key string) string

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// Ref builds a media reference for an object key.
func Ref(key string) string {
	return RefScheme + strings.TrimPrefix(key, "/")
}

// ParseRef extracts the object key from an s3:// media reference.
func ParseRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, RefScheme) {
		return "", false
	}
	key := strings.TrimPrefix(ref, RefScheme)
	if key == "" {
		return "", false
	}
	return key, true
}
