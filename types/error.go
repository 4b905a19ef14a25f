package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Dialogue error codes
const (
	// ErrInvalidSequence marks a transcript corruption attempt, such as an
	// append by a speaker outside the roster. Fatal for the session.
	ErrInvalidSequence ErrorCode = "INVALID_SEQUENCE"
	// ErrRosterTooSmall is rejected at session creation: a roster needs a
	// moderator (or first participant) plus at least one more speaker.
	ErrRosterTooSmall ErrorCode = "ROSTER_TOO_SMALL"
	// ErrDuplicateSpeaker is rejected at roster construction.
	ErrDuplicateSpeaker ErrorCode = "DUPLICATE_SPEAKER"
	// ErrGenerationFailure wraps an utterance generator failure (timeout,
	// malformed output, capability unavailable). Recoverable up to the
	// configured retry ceiling.
	ErrGenerationFailure ErrorCode = "GENERATION_FAILURE"
	// ErrNoEligibleSpeaker means the round-robin fallback found nobody to
	// take the turn. Fatal for the session.
	ErrNoEligibleSpeaker ErrorCode = "NO_ELIGIBLE_SPEAKER"
	// ErrSessionClosed marks operations on a session already in a terminal
	// state.
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"
)

// Ambient error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	// Speaker names the failing speaker for generation failures.
	Speaker string `json:"speaker,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSpeaker names the speaker the error originated from.
func (e *Error) WithSpeaker(name string) *Error {
	e.Speaker = name
	return e
}

// NewGenerationFailure wraps a generator error, carrying the failing
// speaker's name and the opaque cause.
func NewGenerationFailure(speaker string, cause error) *Error {
	return NewError(ErrGenerationFailure, "utterance generation failed").
		WithSpeaker(speaker).
		WithCause(cause).
		WithRetryable(true)
}

// NewRosterTooSmallError reports a roster below the minimum size.
func NewRosterTooSmallError(size int) *Error {
	return NewError(ErrRosterTooSmall,
		fmt.Sprintf("roster needs at least 2 speakers, got %d", size))
}

// AsError extracts a *Error from err, or nil if err is not one.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsErrorCode checks whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	if e := AsError(err); e != nil {
		return e.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e := AsError(err); e != nil {
		return e.Retryable
	}
	return false
}
