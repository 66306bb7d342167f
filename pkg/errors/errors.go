// Package errors provides structured error types for evidencepack.
//
// This package defines error codes and types that enable:
//   - Consistent fatal-error reporting from the CLI
//   - Machine-readable error codes for programmatic handling
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures, reported before any pipeline stage
//   - *_FAILED: Fatal stage failures (assembly, upload)
//   - INTEGRITY_MISMATCH: A pack failed verification
//   - INTERNAL_*: Unexpected internal errors
//
// Analyzer failures never surface here; they are recorded as result statuses.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidRepo, "repository path does not exist: %s", path)
//	if errors.Is(err, errors.ErrCodeInvalidRepo) {
//	    // Handle input failure
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeAssembly, origErr, "write %s", rel)
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
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidRepo   Code = "INVALID_REPO"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeInvalidPack   Code = "INVALID_PACK"

	// Resource errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"
	ErrCodeLocked       Code = "LOCKED"

	// Stage failures
	ErrCodeAssembly Code = "ASSEMBLY_FAILED"
	ErrCodeUpload   Code = "UPLOAD_FAILED"

	// Integrity errors
	ErrCodeIntegrity Code = "INTEGRITY_MISMATCH"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Authentication errors
	ErrCodeUnauthorized Code = "UNAUTHORIZED"

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
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// IsFatalInput reports whether err is an input failure that must stop the run
// before any pipeline stage executes.
func IsFatalInput(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidRepo, ErrCodeInvalidConfig, ErrCodeInvalidInput:
		return true
	}
	return false
}
