// Package errors provides structured error types for DiagramCraft.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, studio and HTTP API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_* / EMPTY_*: Input validation failures
//   - *_NOT_FOUND: Stale or unknown references
//   - NO_*: Preconditions that are not met yet
//   - STORAGE_* / INTERNAL_*: Unexpected backend failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeEmptyName, "project name cannot be empty")
//	if errors.Is(err, errors.ErrCodeEmptyName) {
//	    // Re-prompt the user
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStorage, origErr, "save project %s", id)
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
	ErrCodeEmptyName     Code = "EMPTY_NAME"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidEngine Code = "INVALID_ENGINE"

	// Stale references
	ErrCodeProjectNotFound  Code = "PROJECT_NOT_FOUND"
	ErrCodeVersionNotFound  Code = "VERSION_NOT_FOUND"
	ErrCodeTemplateNotFound Code = "TEMPLATE_NOT_FOUND"

	// Unmet preconditions
	ErrCodeNoArtifact      Code = "NO_ARTIFACT"
	ErrCodeNoActiveProject Code = "NO_ACTIVE_PROJECT"

	// Diagram compilation. Never surfaced by the gateway itself; the
	// render session turns it into a Failed state.
	ErrCodeCompilation Code = "COMPILATION_FAILED"

	// Backend and internal errors
	ErrCodeStorage     Code = "STORAGE_ERROR"
	ErrCodeExport      Code = "EXPORT_FAILED"
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

// IsNotFound reports whether err refers to a project, version or template
// that does not exist.
func IsNotFound(err error) bool {
	switch GetCode(err) {
	case ErrCodeProjectNotFound, ErrCodeVersionNotFound, ErrCodeTemplateNotFound:
		return true
	}
	return false
}
