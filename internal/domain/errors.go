package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrDuplicateSource = fmt.Errorf("%w: duplicate source", ErrConfiguration)
	ErrInvalidURL      = fmt.Errorf("%w: invalid url", ErrConfiguration)
	ErrSourceNotFound  = fmt.Errorf("%w: source not found", ErrConfiguration)

	ErrUnreachable       = errors.New("feed unreachable")
	ErrBadStatus         = errors.New("feed returned bad status")
	ErrMalformedResponse = errors.New("malformed feed response")

	ErrImportFailed = errors.New("import failed")
	ErrMedia        = errors.New("media import failed")

	ErrRunInProgress = errors.New("run in progress")
)

// BadStatusError reports a non-200 feed response.
type BadStatusError struct {
	Code int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

func (e *BadStatusError) Is(target error) bool {
	return target == ErrBadStatus
}

// ImportError is a persistence failure for one article.
type ImportError struct {
	ExternalID int64
	Reason     error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import article %d: %v", e.ExternalID, e.Reason)
}

func (e *ImportError) Is(target error) bool {
	return target == ErrImportFailed
}

func (e *ImportError) Unwrap() error {
	return e.Reason
}

// MediaError is a failed featured-media import.
type MediaError struct {
	URL    string
	Reason error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s: %v", e.URL, e.Reason)
}

func (e *MediaError) Is(target error) bool {
	return target == ErrMedia
}

func (e *MediaError) Unwrap() error {
	return e.Reason
}
