package schema

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable wire-level error identifier.
type ErrorCode string

// Wire error codes returned to callers of the invocation endpoint.
const (
	ErrCodeInvalidFunction    ErrorCode = "invalid_function"
	ErrCodeInvalidParameters  ErrorCode = "invalid_parameters"
	ErrCodePermissionDenied   ErrorCode = "permission_denied"
	ErrCodeTimeout            ErrorCode = "timeout"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	ErrCodeInternal           ErrorCode = "internal_error"
)

// Internal error codes. These never appear in an invocation outcome.
const (
	ErrCodeConflict ErrorCode = "conflict"
	ErrCodeNotFound ErrorCode = "not_found"
	ErrCodeStore    ErrorCode = "store_error"
)

var wireCodes = map[ErrorCode]bool{
	ErrCodeInvalidFunction:    true,
	ErrCodeInvalidParameters:  true,
	ErrCodePermissionDenied:   true,
	ErrCodeTimeout:            true,
	ErrCodeServiceUnavailable: true,
	ErrCodeInternal:           true,
}

// IsWireCode reports whether code is one of the six invocation error codes.
func IsWireCode(code ErrorCode) bool {
	return wireCodes[code]
}

// ConduitError is the structured error type for all conduit operations.
type ConduitError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ConduitError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ConduitError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ConduitError.
func NewError(code ErrorCode, message string) *ConduitError {
	return &ConduitError{Code: code, Message: message}
}

// NewErrorf creates a new ConduitError with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *ConduitError {
	return &ConduitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *ConduitError) WithCause(err error) *ConduitError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ConduitError) WithDetails(details map[string]any) *ConduitError {
	e.Details = details
	return e
}

// CodeOf extracts the ErrorCode from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var ce *ConduitError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
