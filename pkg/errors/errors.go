// Package errors provides structured error types for depscan.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the scanner, resolver and CLI
//   - Machine-readable error codes for failure classification
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - NOT_FOUND_*, FETCH_*, NO_METADATA: Resource retrieval failures
//   - SINGLE_ROOT_*, INCONSISTENT_*, GRAPH_*: Resolver output inconsistencies
//   - PROCESS_*: Subprocess supervision failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNoMetadata, "no artifact for %s %s", name, version)
//	if errors.Is(err, errors.ErrCodeNoMetadata) {
//	    // try the next candidate
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetch, origErr, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidVersion Code = "INVALID_VERSION"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resource retrieval errors
	ErrCodeNotFound   Code = "NOT_FOUND"
	ErrCodeFetch      Code = "FETCH_FAILED"
	ErrCodeNoMetadata Code = "NO_METADATA"
	ErrCodeNetwork    Code = "NETWORK_ERROR"

	// Resolver output inconsistencies
	ErrCodeSingleRoot   Code = "SINGLE_ROOT_VIOLATION"
	ErrCodeInconsistent Code = "INCONSISTENT_GRAPH"
	ErrCodeGraphTooDeep Code = "GRAPH_TOO_DEEP"

	// Time budget
	ErrCodeDeadline Code = "DEADLINE_EXCEEDED"

	// Subprocess supervision
	ErrCodeStuck      Code = "PROCESS_STUCK"
	ErrCodeUnkillable Code = "PROCESS_UNKILLABLE"

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
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error chain holds no *Error.
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

// Fatal reports whether err signals a resource leak that needs an operator
// rather than a log line.
func Fatal(err error) bool {
	return Is(err, ErrCodeUnkillable)
}
