// Package telemetry holds the error taxonomy shared by the ingestion, alert,
// query and retention components.
package telemetry

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means there is no valid tenant context. Never retried silently.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation means the input was malformed. Not retried.
	ErrValidation = errors.New("validation error")
	// ErrStorage is a transient infrastructure failure, including timeouts.
	ErrStorage = errors.New("storage unavailable")
)

// Invalid builds a validation error for field.
func Invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

// Storage wraps err as a storage failure for op. Context cancellation and
// deadline errors stay matchable with errors.Is.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// IsTimeout reports whether err came from an expired storage deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
