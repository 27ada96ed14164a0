// internal/models/errors.go
package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for operations referencing an unknown session or
// user. Surfaced immediately, never retried.
var ErrNotFound = errors.New("not found")

// ErrStaleSnapshot marks a detected gap in the change feed (sequence
// discontinuity). It triggers a resync and is transparent to callers beyond
// added latency.
var ErrStaleSnapshot = errors.New("stale snapshot")

// ValidationError rejects malformed input before it enters the aggregator; a
// rejected submission is never partially applied.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// TransientError wraps a retryable failure (feed disconnect, write timeout).
// Surfaced to the caller only after retries exhaust.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
