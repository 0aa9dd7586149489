package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Jot error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"         // 404
	ErrConflict        ErrorCode = "CONFLICT"          // 409
	ErrPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE" // 413
	ErrInternal        ErrorCode = "INTERNAL"          // 500
	ErrUpstream        ErrorCode = "UPSTREAM"          // 502
)

// JotError represents a structured error with code, status, and details.
type JotError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *JotError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *JotError {
	return &JotError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing capture, thought or task.
func NewNotFound(kind, id string) *JotError {
	return &JotError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *JotError {
	return &JotError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewPayloadTooLarge creates a 413 error when an upload exceeds the size limit.
func NewPayloadTooLarge(max, actual int64) *JotError {
	return &JotError{
		Code:    ErrPayloadTooLarge,
		Status:  413,
		Message: fmt.Sprintf("upload exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewUpstream creates a 502 error for a failing collaborator (transcription,
// classification, embedding).
func NewUpstream(service string, err error) *JotError {
	msg := service + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", service, err)
	}
	return &JotError{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
		Details: map[string]any{"service": service},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *JotError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &JotError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or anything it wraps) is a JotError with the given code.
func Is(err error, code ErrorCode) bool {
	var jErr *JotError
	if stderrors.As(err, &jErr) {
		return jErr.Code == code
	}
	return false
}

// As returns the JotError wrapped by err, if any.
func As(err error) (*JotError, bool) {
	var jErr *JotError
	if stderrors.As(err, &jErr) {
		return jErr, true
	}
	return nil, false
}
