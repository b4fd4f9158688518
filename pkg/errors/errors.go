// Package errors provides structured error types for nixmirror.
//
// Every failure that can abort a mirror run carries one of a small set of
// codes so the CLI can report the error kind alongside the failing
// identifier or URL:
//   - TRANSPORT_ERROR: non-2xx responses and connection failures
//   - INTEGRITY_ERROR: a downloaded blob does not hash to its expected digest
//   - PARSE_ERROR: a metadata document or digest string is malformed
//   - FILESYSTEM_ERROR: creating, reading, syncing or renaming files failed
//   - INVALID_*: input validation failures (paths, identifiers, config)
//
// # Usage
//
//	err := errors.New(errors.ErrCodeParse, "missing URL in %s", path)
//	if errors.Is(err, errors.ErrCodeParse) {
//	    // Handle parse error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeTransport, origErr, "GET %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Run-aborting errors raised by the fetcher and resolver
	ErrCodeTransport  Code = "TRANSPORT_ERROR"
	ErrCodeIntegrity  Code = "INTEGRITY_ERROR"
	ErrCodeParse      Code = "PARSE_ERROR"
	ErrCodeFilesystem Code = "FILESYSTEM_ERROR"

	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidPath  Code = "INVALID_PATH"
	ErrCodeInvalidID    Code = "INVALID_ID"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Kind returns a short lowercase name for the error category, suitable for
// log fields and metric labels. Errors without a code report "unknown".
func Kind(err error) string {
	switch GetCode(err) {
	case ErrCodeTransport:
		return "transport"
	case ErrCodeIntegrity:
		return "integrity"
	case ErrCodeParse:
		return "parse"
	case ErrCodeFilesystem:
		return "filesystem"
	case ErrCodeInvalidInput, ErrCodeInvalidPath, ErrCodeInvalidID:
		return "invalid"
	case ErrCodeInternal, ErrCodeUnsupported:
		return "internal"
	default:
		return "unknown"
	}
}
