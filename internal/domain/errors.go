package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientFetch marks network and HTTP status failures. Retryable up to
	// the source's attempt bound.
	ErrTransientFetch = errors.New("transient fetch failure")

	// ErrMalformedPayload marks a received payload the normalizer cannot read.
	// Never retried.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrPersistence marks a failed lookup or write against the readings store.
	ErrPersistence = errors.New("persistence failure")

	// ErrUnknownSource marks a plant whose source kind has no provider or
	// normalizer configured.
	ErrUnknownSource = errors.New("unknown source")

	// ErrReadingExists is returned by a store when a reading with the same
	// plant and observation time is already persisted. Overlapping cycles can
	// race between the duplicate check and the insert.
	ErrReadingExists = errors.New("reading already exists")
)

// FetchError describes the last failed attempt of a provider fetch.
type FetchError struct {
	URL        string
	StatusCode int // 0 for transport-level failures
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes both the transient classification and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransientFetch}
	}
	return []error{ErrTransientFetch, e.Err}
}

// IsRetryable reports whether another attempt could succeed where err failed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientFetch)
}

// ErrorClass returns a short label for err, used in logs, metrics and cycle
// summaries.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientFetch):
		return "transient_fetch"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrUnknownSource):
		return "unknown_source"
	default:
		return "other"
	}
}
