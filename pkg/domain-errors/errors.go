// Package domainerrors defines coded domain errors shared across services and
// transport. Services attach a stable Code to every rejected mutation so the
// HTTP layer (and UI collaborators behind it) can render specific messaging
// instead of a generic failure.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	// CodeInvalidInput marks malformed or out-of-range input. Never retried.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks a missing entity (card, enrollment, program).
	CodeNotFound Code = "not_found"
	// CodeConflict marks user-actionable state conflicts such as
	// already_enrolled or already_responded. Never retried.
	CodeConflict Code = "conflict"
	// CodeConcurrency marks an optimistic concurrency failure. Services
	// retry these internally with bounded backoff before surfacing.
	CodeConcurrency Code = "concurrent_modification"
	// CodeInsufficientBalance marks a redeem that would drive a card
	// balance below zero. Surfaced, never retried.
	CodeInsufficientBalance Code = "insufficient_balance"
	// CodeSecurity marks QR validation failures: bad signature, stale
	// timestamp, replayed nonce. Surfaced and logged for audit.
	CodeSecurity Code = "security_rejected"
	// CodeTimeout marks a context deadline or cancellation.
	CodeTimeout Code = "timeout"
	// CodeUnavailable marks a temporarily unreachable dependency.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks unexpected failures with no caller remedy.
	CodeInternal Code = "internal"
)

// Error is a domain error carrying a Code, a human-readable message, and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause remains
// reachable via errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that never passed through this package.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the human-readable message, or the raw error text for
// uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// ToHTTPStatus maps a code to its HTTP status. Transport handlers use this
// for the JSON error envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeConcurrency:
		return http.StatusConflict
	case CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case CodeSecurity:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
