package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures worth retrying (timeouts, 5xx, rate limits).
	ErrTransient = errors.New("provider transient failure")
	// ErrPermanent marks failures a retry cannot fix.
	ErrPermanent = errors.New("provider permanent failure")
)

// Error annotates a provider failure with the operation and its retry class.
type Error struct {
	Op    string
	Class error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %v", e.Op, e.Class)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Class, e.Err}
}

// Transient wraps err as a retryable provider failure.
func Transient(op string, err error) error {
	return &Error{Op: op, Class: ErrTransient, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(op string, err error) error {
	return &Error{Op: op, Class: ErrPermanent, Err: err}
}

// IsTransient reports whether err carries ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err carries ErrPermanent. Anything else leaves
// the outcome of a non-idempotent call unknown.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
