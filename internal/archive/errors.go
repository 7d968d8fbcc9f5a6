package archive

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing archive, page, or catalog row.
var ErrNotFound = errors.New("not found")

// ErrInvalidURL reports a root URL rejected at entry.
var ErrInvalidURL = errors.New("invalid url")

// FetchErrorKind classifies a page or asset fetch failure.
type FetchErrorKind string

// Fetch failure classes.
const (
	FetchNetwork FetchErrorKind = "network"
	FetchTimeout FetchErrorKind = "timeout"
	FetchStatus  FetchErrorKind = "http-status"
)

// FetchError is a typed failure from a single HTTP GET. StatusCode is
// set only for the http-status kind.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth a bounded retry.
// Client errors (4xx) are deterministic and excluded.
func (e *FetchError) Retryable() bool {
	if e.Kind == FetchStatus {
		return e.StatusCode >= 500
	}
	return true
}

// DownloadError wraps an asset download failure. It is recorded on the
// AssetRecord, never propagated to abort page processing.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
