package domain

import (
	"context"
	"errors"
	"fmt"
)

// Client-visible failures. Everything else is treated as an internal fault.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
	ErrBidTooLow     = errors.New("bid must be higher than the current highest bid")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("concurrent update conflict")
)

// BidTooLowError carries the current highest bid so clients can correct their offer.
type BidTooLowError struct {
	Current int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s (current highest bid: %d)", ErrBidTooLow.Error(), e.Current)
}

// Is makes errors.Is(err, ErrBidTooLow) match.
func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// MediaFetchError reports that a media reference could not be turned into image data.
type MediaFetchError struct {
	Ref string
	Err error
}

func (e *MediaFetchError) Error() string {
	return fmt.Sprintf("failed to fetch media %q: %v", e.Ref, e.Err)
}

func (e *MediaFetchError) Unwrap() error {
	return e.Err
}

// GenerationErrorKind classifies failures of the text generation collaborator.
type GenerationErrorKind string

const (
	GenerationTimeout   GenerationErrorKind = "timeout"
	GenerationQuota     GenerationErrorKind = "quota"
	GenerationMalformed GenerationErrorKind = "malformed"
	GenerationNetwork   GenerationErrorKind = "network"
	GenerationDisabled  GenerationErrorKind = "disabled"
)

// GenerationError is returned by the text generator.
type GenerationError struct {
	Kind GenerationErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation failed: %s", e.Kind)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// GenerationErrorKindOf extracts the kind of a generation failure. Unknown errors
// are reported as network failures.
func GenerationErrorKindOf(err error) GenerationErrorKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return GenerationTimeout
	}
	return GenerationNetwork
}
