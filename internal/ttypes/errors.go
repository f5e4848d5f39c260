package ttypes

import (
	"context"
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	// ErrMissingCredential indicates no session credential was supplied
	ErrMissingCredential = errors.New("missing session credential")

	// ErrEmptyAudio indicates a session produced no audio bytes
	ErrEmptyAudio = errors.New("synthesis returned no audio")

	// ErrSessionClosed indicates the session closed before completing
	ErrSessionClosed = errors.New("synthesis session closed")

	// ErrRetriesExhausted indicates playback failed after the single reload
	ErrRetriesExhausted = errors.New("playback failed after reload")

	// ErrUnsupportedFormat indicates a player cannot render the audio format
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// ErrorCode identifies specific error types
type ErrorCode string

const (
	CodePrecondition ErrorCode = "PRECONDITION"
	CodeTransport    ErrorCode = "TRANSPORT"
	CodeBackend      ErrorCode = "BACKEND"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeEmptyAudio   ErrorCode = "EMPTY_AUDIO"
	CodePlayback     ErrorCode = "PLAYBACK"
	CodeFatal        ErrorCode = "FATAL"
)

// Error represents a pipeline error with additional context
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewError creates a new error with context
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// IsFatal returns true if the error needs the host to intervene
func (e *Error) IsFatal() bool {
	switch e.Code {
	case CodePrecondition, CodeFatal:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the same request may succeed later
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case CodeTransport, CodeTimeout, CodeEmptyAudio:
		return true
	default:
		return false
	}
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsCanceled reports whether err is a cancellation rather than a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
