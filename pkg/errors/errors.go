package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Status    int               `json:"status"`
	Details   map[string]string `json:"details,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	Err       error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Error codes shared by the catalog services.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeDuplicateKey     = "DUPLICATE_KEY"
	CodeAlreadyEnrolled  = "ALREADY_ENROLLED"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeNotEnrolled      = "NOT_ENROLLED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New(CodeNotFound, http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New(CodeDuplicateKey, http.StatusConflict, "conflict")
	ErrValidation   = New(CodeValidation, http.StatusBadRequest, "validation failed")
	ErrInternal     = New(CodeInternal, http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// NotFound reports a missing entity of the given kind.
func NotFound(entity, key string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: entity + " not found",
		Details: map[string]string{"entity": entity, "key": key},
	}
}

// DuplicateKey reports a uniqueness violation on field.
func DuplicateKey(field, value string) *Error {
	return &Error{
		Code:    CodeDuplicateKey,
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("%s already in use: %s", field, value),
		Details: map[string]string{"field": field},
	}
}

// BusinessRule reports a rejected domain rule. The code doubles as the reason.
func BusinessRule(code, message string) *Error {
	return &Error{Code: code, Status: http.StatusUnprocessableEntity, Message: message}
}

// Validation wraps a payload validation failure.
func Validation(err error, message string) *Error {
	return Wrap(err, CodeValidation, http.StatusBadRequest, message)
}

// Infrastructure wraps an unexpected store or transport failure. Timeouts and
// dropped connections are flagged retryable; callers must still re-check
// state before repeating a write.
func Infrastructure(err error, message string) *Error {
	wrapped := Wrap(err, CodeInternal, http.StatusInternalServerError, message)
	wrapped.Retryable = IsRetryable(err)
	return wrapped
}

// IsRetryable reports whether err looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
