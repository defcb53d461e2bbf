// Package errors provides structured error types for deepsave.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library, CLI and server
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes fall into groups:
//   - INVALID_*: Input validation failures
//   - NOT_FOUND: Object or resource not found
//   - NETWORK_ERROR, TIMEOUT: Transport problems
//   - CIRCULAR_DEPENDENCY, CHILD_SAVE_FAILURE, ENCODING_FAILURE,
//     TRANSPORT_FAILURE: Deep-save failures
//   - INTERNAL_ERROR: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidClass, "invalid class name: %s", name)
//	if errors.Is(err, errors.ErrCodeInvalidClass) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to save %s", class)
//
// Typed errors from other packages take part by implementing Code() Code;
// [GetCode] and [Is] find them anywhere in a wrap chain.
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
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidClass    Code = "INVALID_CLASS_NAME"
	ErrCodeInvalidField    Code = "INVALID_FIELD_NAME"
	ErrCodeInvalidObjectID Code = "INVALID_OBJECT_ID"
	ErrCodeInvalidJSON     Code = "INVALID_JSON"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Network errors
	ErrCodeNetwork      Code = "NETWORK_ERROR"
	ErrCodeTimeout      Code = "TIMEOUT"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"

	// Deep-save errors
	ErrCodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	ErrCodeChildSaveFailure   Code = "CHILD_SAVE_FAILURE"
	ErrCodeEncodingFailure    Code = "ENCODING_FAILURE"
	ErrCodeTransportFailure   Code = "TRANSPORT_FAILURE"

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

// Coder is implemented by typed errors that carry a code without being an
// *Error.
type Coder interface {
	Code() Code
}

// Is reports whether err has the given error code. The outermost coded
// error in the chain decides.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from the first *Error or [Coder] in the
// chain. Returns empty string if there is none.
func GetCode(err error) Code {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code
		case Coder:
			return e.Code()
		}
		err = errors.Unwrap(err)
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
