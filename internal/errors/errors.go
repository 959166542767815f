// Package errors defines the error kinds surfaced by the license
// authority and their HTTP shapes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Sentinel errors for the authority's failure kinds. Handlers map these
// to status codes with errors.Is; everything else is a 500.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("license not found")
	ErrDuplicateKey      = errors.New("duplicate license key")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrHwidMismatch      = errors.New("hwid mismatch")
	ErrGone              = errors.New("license expired or revoked")
	ErrKeyExhaustion     = errors.New("key generation exhausted retries")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// APIError is the JSON error envelope returned by most endpoints.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates an APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

// NewWithDetails creates an APIError with an attached details payload.
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

// Map translates an authority error into a renderable APIError using the
// classification of the error-handling design: validation 400, not-found
// 404, conflicts 409, gone 410, everything else 500.
func Map(err error) *APIError {
	switch {
	case errors.Is(err, ErrValidation):
		return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, "NOT_FOUND", "License not found")
	case errors.Is(err, ErrHwidMismatch):
		return New(http.StatusConflict, "HWID_MISMATCH", "HwidMismatch")
	case errors.Is(err, ErrDuplicateKey):
		return New(http.StatusConflict, "DUPLICATE_KEY", "License key already exists")
	case errors.Is(err, ErrIllegalTransition):
		return NewWithDetails(http.StatusConflict, "ILLEGAL_TRANSITION", "Illegal state transition", err.Error())
	case errors.Is(err, ErrGone):
		return New(http.StatusGone, "LICENSE_GONE", "License is expired or revoked")
	case errors.Is(err, ErrKeyExhaustion):
		return New(http.StatusInternalServerError, "KEY_EXHAUSTION", "Could not generate a unique license key")
	default:
		return New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	}
}
