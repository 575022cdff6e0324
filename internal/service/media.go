package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/storage"
	_ "golang.org/x/image/webp"
)

// Media is image data ready to hand to a Generator.
type Media struct {
	Ref         string
	Data        []byte
	MIMEType    string
	Placeholder bool
}

// MediaFetcher resolves a listing's media reference into image bytes.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref string) (*Media, error)
}

// MediaService resolves http(s) URLs and s3:// object references.
type MediaService struct {
	client   *resty.Client
	storage  storage.ObjectStorage
	maxBytes int64
}

// NewMediaService creates a MediaService. objectStorage may be nil, in which
// case s3:// references fail to resolve.
func NewMediaService(cfg *config.EnrichmentConfig, objectStorage storage.ObjectStorage) *MediaService {
	timeout := cfg.MediaTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBytes := cfg.MaxMediaBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "image/*")

	return &MediaService{
		client:   client,
		storage:  objectStorage,
		maxBytes: maxBytes,
	}
}

// Fetch downloads and validates the image behind ref. Any failure is a
// *domain.MediaFetchError.
func (s *MediaService) Fetch(ctx context.Context, ref string) (*Media, error) {
	data, err := s.read(ctx, ref)
	if err != nil {
		return nil, &domain.MediaFetchError{Ref: ref, Err: err}
	}

	mimeType, err := detectImageType(data)
	if err != nil {
		return nil, &domain.MediaFetchError{Ref: ref, Err: err}
	}

	return &Media{Ref: ref, Data: data, MIMEType: mimeType}, nil
}

func (s *MediaService) read(ctx context.Context, ref string) ([]byte, error) {
	if key, ok := storage.ParseRef(ref); ok {
		if s.storage == nil {
			return nil, errors.New("object storage is not configured")
		}
		body, err := s.storage.Download(ctx, key)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return s.readLimited(body)
	}

	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return nil, errors.New("unsupported media reference")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(ref)
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return s.readLimited(body)
}

func (s *MediaService) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", s.maxBytes)
	}
	return data, nil
}

// detectImageType checks that data decodes as a supported image format.
func detectImageType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty media")
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("not a supported image: %w", err)
	}
	switch format {
	case "jpeg":
		return "image/jpeg", nil
	case "png":
		return "image/png", nil
	case "gif":
		return "image/gif", nil
	case "webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("unsupported image format %q", format)
	}
}

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// PlaceholderMedia returns the built-in image used when a listing's media
// cannot be fetched: a small dark tile with a neon border.
func PlaceholderMedia() *Media {
	placeholderOnce.Do(func() {
		const w, h = 64, 48
		bg := color.RGBA{R: 0x0f, G: 0x0c, B: 0x29, A: 0xff}
		fg := color.RGBA{R: 0x00, G: 0xf7, B: 0xff, A: 0xff}

		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := bg
				if x < 2 || y < 2 || x >= w-2 || y >= h-2 {
					c = fg
				}
				img.SetRGBA(x, y, c)
			}
		}

		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		placeholderPNG = buf.Bytes()
	})

	return &Media{
		Ref:         "placeholder",
		Data:        placeholderPNG,
		MIMEType:    "image/png",
		Placeholder: true,
	}
}
