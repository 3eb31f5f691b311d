package dataprovider

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the typed failure a provider surfaces to the orchestrator.
type Error struct {
	// StatusCode follows HTTP semantics regardless of the backend protocol.
	StatusCode int

	// Message is the human-readable failure summary.
	Message string

	// Errors holds structured per-field validation errors, when available.
	Errors map[string][]string
}

// NewError builds an Error from a status code and message.
func NewError(statusCode int, message string) *Error {
	return &Error{StatusCode: statusCode, Message: message}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (status code: %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("request failed (status code: %d)", e.StatusCode)
}

// NotFound builds the conventional 404 error for a missing record.
func NotFound(resource string, id ID) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("resource %q has no record %q", resource, id),
	}
}

// ErrorStatus extracts the status code from err if it is (or wraps) an Error.
func ErrorStatus(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode, true
	}
	return 0, false
}

// IsStatus reports whether err carries the given status code.
func IsStatus(err error, statusCode int) bool {
	code, ok := ErrorStatus(err)
	return ok && code == statusCode
}
