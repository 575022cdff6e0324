package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/domain"
)

type memoryObjects map[string][]byte

func (m memoryObjects) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m[key] = b
	return nil
}

func (m memoryObjects) Download(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m memoryObjects) GetURL(key string) string { return "https://cdn.example.com/" + key }

func (m memoryObjects) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m[key]
	return ok, nil
}

func TestMediaFetchHTTP(t *testing.T) {
	png := PlaceholderMedia().Data
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			_, _ = w.Write(png)
		case "/text":
			_, _ = w.Write([]byte("definitely not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewMediaService(&config.EnrichmentConfig{}, nil)
	ctx := context.Background()

	m, err := s.Fetch(ctx, srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.MIMEType)
	assert.Equal(t, png, m.Data)
	assert.False(t, m.Placeholder)

	for _, ref := range []string{srv.URL + "/missing", srv.URL + "/text", "ftp://nope", "s3://key"} {
		_, err := s.Fetch(ctx, ref)
		var fetchErr *domain.MediaFetchError
		assert.True(t, errors.As(err, &fetchErr), ref)
	}
}

func TestMediaFetchSizeLimit(t *testing.T) {
	png := PlaceholderMedia().Data
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	s := NewMediaService(&config.EnrichmentConfig{MaxMediaBytes: int64(len(png) - 1)}, nil)
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestMediaFetchObjectStorage(t *testing.T) {
	objects := memoryObjects{"memes/a.png": PlaceholderMedia().Data}
	s := NewMediaService(&config.EnrichmentConfig{}, objects)

	m, err := s.Fetch(context.Background(), "s3://memes/a.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.MIMEType)

	_, err = s.Fetch(context.Background(), "s3://memes/missing.png")
	require.Error(t, err)
}
