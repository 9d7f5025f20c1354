// Package errors carries the typed error codes the API maps to HTTP
// responses. Services return *Error; transports read Code().Metadata().
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeUnknownSession        Code = "UNKNOWN_SESSION"
	CodeInsufficientClaimable Code = "INSUFFICIENT_CLAIMABLE"
	CodeInconsistentInvariant Code = "INCONSISTENT_INVARIANT"
)

// Metadata describes how a code surfaces to API clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type exposure uint8

const (
	opaque exposure = iota
	withDetails
)

func meta(status int, public string, exp exposure, retryable bool) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      retryable,
		PublicMessage:  public,
		DetailsAllowed: exp == withDetails,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails, false),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", opaque, false),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", opaque, false),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", opaque, false),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", opaque, false),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails, false),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails, false),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", opaque, false),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", opaque, true),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", withDetails, true),

	CodeUnknownSession:        meta(http.StatusNotFound, "checkout session not recognized", withDetails, false),
	CodeInsufficientClaimable: meta(http.StatusUnprocessableEntity, "nothing available to pay out", withDetails, false),
	// Halts the payout flow; an operator has to look before anything retries.
	CodeInconsistentInvariant: meta(http.StatusInternalServerError, "payout processing halted", opaque, false),
}

// Metadata falls back to CodeInternal for codes nobody registered.
func (c Code) Metadata() Metadata {
	if m, ok := metadataByCode[c]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// ServerSide reports whether the code maps to a 5xx.
func (c Code) ServerSide() bool {
	return c.Metadata().HTTPStatus >= http.StatusInternalServerError
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets client-visible details. They are only rendered for codes
// whose metadata allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
