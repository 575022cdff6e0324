package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/memehustle/internal/config"
)

func TestRefRoundTrip(t *testing.T) {
	ref := Ref("/memes/abc.png")
	assert.Equal(t, "s3://memes/abc.png", ref)

	key, ok := ParseRef(ref)
	require.True(t, ok)
	assert.Equal(t, "memes/abc.png", key)

	_, ok = ParseRef("https://example.com/a.png")
	assert.False(t, ok)
	_, ok = ParseRef("s3://")
	assert.False(t, ok)
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acct.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.us-west-2.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/"))
	assert.Equal(t, "bucket.example.com", normalizeEndpoint("https://bucket.example.com/some/path"))
}

func TestNewStorageDisabled(t *testing.T) {
	s, err := NewStorage(&config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetURL(t *testing.T) {
	s, err := NewS3Storage(&S3Config{Endpoint: "localhost:9000", Bucket: "memes"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/memes/a.png", s.GetURL("a.png"))

	s, err = NewS3Storage(&S3Config{Endpoint: "localhost:9000", Bucket: "memes", PublicURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", s.GetURL("a.png"))
}
