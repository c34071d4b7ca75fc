// Package apierr defines the closed error taxonomy shared by every
// Homestead component. Collaborators map their failures onto a Code
// before returning, so callers can branch on classification without
// inspecting error strings.
package apierr

import (
	"errors"
	"fmt"
)

// Code is a closed classification of failure, mirroring the taxonomy
// every component must map its own errors onto before returning.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeTransport  Code = "transport"
	CodeTimeout    Code = "timeout"
	CodeBackend    Code = "backend"
	CodeInternal   Code = "internal"
	// CodeConfig classifies the dispatcher-specific failure modes in
	// spec.md §4.1 (unknown model tag, missing backend binary, missing
	// credential) — not retried, surfaced immediately.
	CodeConfig Code = "config"
)

// Error is a tagged error carrying a Code plus a human-readable message
// and, optionally, the underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a tagged error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap tags an existing error with a classification, preserving it for
// errors.Is/As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation is a convenience constructor for the common case.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

// NotFound is a convenience constructor for the common case.
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict is a convenience constructor for the common case.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected failure, coercing unknown failure modes
// into the internal bucket per the propagation policy.
func Internal(cause error, format string, args ...any) *Error {
	return Wrap(CodeInternal, fmt.Sprintf(format, args...), cause)
}

// CodeOf extracts the Code from err, returning CodeInternal if err is not
// (or does not wrap) an *Error — the "coerce unknown failure modes"
// fallback the propagation policy requires.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return CodeInternal
}

// Is reports whether err is (or wraps) an *Error with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
