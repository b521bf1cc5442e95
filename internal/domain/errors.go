package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Pipeline errors are classified by category so the
// orchestrator can attribute a failure to the right stage; use errors.Is
// against these when deciding policy.
var (
	ErrNotFound      = errors.New("not found")
	ErrLockHeld      = errors.New("lock already held")
	ErrFetch         = errors.New("fetch failed")
	ErrDecompression = errors.New("decompression failed")
	ErrParse         = errors.New("parse failed")
	ErrUpsert        = errors.New("upsert failed")
	ErrConfiguration = errors.New("configuration error")
)

// FetchError reports a transport failure or an unexpected non-404 status
// from the upstream feed. It unwraps to ErrFetch.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the failure happened below HTTP
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrFetch, e.Cause}
	}
	return []error{ErrFetch}
}
