// Package httperrors maps domain errors onto structured HTTP error responses.
package httperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeConflict indicates a state conflict, e.g. an invalid lifecycle transition (HTTP 409)
	TypeConflict ErrorType = "conflict"
	// TypeTimeout indicates a bounded operation exceeded its deadline (HTTP 504)
	TypeTimeout ErrorType = "timeout"
	// TypeExternal indicates a streaming-provider failure (HTTP 502)
	TypeExternal ErrorType = "external"
	// TypeRateLimited indicates the caller exceeded a request budget (HTTP 429)
	TypeRateLimited ErrorType = "rate_limited"
	// TypeInternal indicates a server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error is a structured error with type, message, and context fields.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeTimeout:
		return http.StatusGatewayTimeout
	case TypeExternal:
		return http.StatusBadGateway
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ToResponse returns the JSON body for this error.
func (e *Error) ToResponse() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message}
}

// RateLimitedError creates a new rate-limited error (HTTP 429).
func RateLimitedError(message string) *Error {
	return &Error{Type: TypeRateLimited, Message: message}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// FromDomain converts a domain error into a structured HTTP error. Unknown
// errors map to TypeInternal.
func FromDomain(err error) *Error {
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return &Error{Type: TypeNotFound, Message: "resource not found", Cause: err}
	case errors.Is(err, domain.ErrInvalidTransition):
		return &Error{Type: TypeConflict, Message: "invalid session state for this operation", Cause: err}
	case errors.Is(err, domain.ErrAlreadyInProgress):
		return &Error{Type: TypeConflict, Message: "operation already in progress", Cause: err}
	case errors.Is(err, domain.ErrTimeout):
		return &Error{Type: TypeTimeout, Message: "operation timed out", Cause: err}
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrProviderRejected):
		return &Error{Type: TypeExternal, Message: "streaming provider error", Cause: err}
	case errors.Is(err, domain.ErrPersistenceFailed):
		return &Error{Type: TypeInternal, Message: "persistence failed", Cause: err}
	default:
		return &Error{Type: TypeInternal, Message: "internal error", Cause: err}
	}
}
