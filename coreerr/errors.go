// Package coreerr provides the error taxonomy and JSON error responses used
// throughout the coregate core: endpoint admission, routing, application
// dispatch, transport, and component lifecycle.
//
// Basic usage:
//
//	// Simple error response
//	coreerr.Error(w, "Something went wrong", http.StatusBadRequest)
//
//	// Type-specific error with context
//	coreerr.ErrorWithType(w, "route not found", coreerr.AdmissionError, http.StatusNotFound)
package coreerr

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// If nil is provided, the function will do nothing to prevent
// accidentally disabling logging.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType categorizes a CoreError into one of the taxonomy classes from
// the error handling design: configuration, admission, application,
// transport, or lifecycle faults.
type ErrorType string

const (
	// ConfigError represents malformed configuration or a duplicate mount,
	// surfaced at startup and fatal.
	ConfigError ErrorType = "config_error"

	// AdmissionError represents a rate-limit denial or routing no-match,
	// surfaced as an HTTP response (429 or 404), never propagated further.
	AdmissionError ErrorType = "admission_error"

	// ApplicationError represents a failed application handler, translated
	// to a 500 and logged with an error code.
	ApplicationError ErrorType = "application_error"

	// TransportError represents a socket or TLS failure; the connection is
	// torn down and logged with a normalized short code.
	TransportError ErrorType = "transport_error"

	// LifecycleError represents an init/start/stop failure in a component.
	LifecycleError ErrorType = "lifecycle_error"

	// AuthError represents authentication and authorization failures on a mount.
	AuthError ErrorType = "authentication_error"

	// RateLimitError is the admission-error subtype raised specifically by
	// the token-bucket substrate.
	RateLimitError ErrorType = "rate_limit_error"

	// NotFoundError is the admission-error subtype raised when routing
	// fallthrough is exhausted.
	NotFoundError ErrorType = "not_found"
)

// CoreError is the error type returned to HTTP clients and logged
// internally. It is designed to be serialized to JSON for API responses
// while retaining the underlying cause for logging and debugging.
type CoreError struct {
	// Type categorizes the error for client handling.
	Type ErrorType `json:"type"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON).
	Code int `json:"-"`

	// RequestID links the error to a specific request.
	RequestID string `json:"request_id"`

	// Details contains additional error context.
	Details map[string]interface{} `json:"details,omitempty"`

	// err is the underlying error (not exposed in JSON).
	err error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, implementing the unwrap interface
// for error chains.
func (e *CoreError) Unwrap() error {
	return e.err
}

// Is implements error matching for errors.Is, comparing by Type only.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New builds a CoreError with every field explicit, for call sites that
// need full control over the response body.
func New(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, cause error) *CoreError {
	return &CoreError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       cause,
	}
}

// WriteError formats and writes a CoreError to an http.ResponseWriter.
func WriteError(w http.ResponseWriter, err *CoreError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	_ = json.NewEncoder(w).Encode(err)
}

// Error is a drop-in replacement for http.Error that writes a CoreError
// with the ApplicationError type, picking up the request ID from the
// response header if one was already set by the request-ID middleware.
func Error(w http.ResponseWriter, message string, code int) {
	requestID := w.Header().Get("X-Request-ID")
	WriteError(w, &CoreError{
		Type:      ApplicationError,
		Message:   message,
		Code:      code,
		RequestID: requestID,
	})
}

// ErrorWithType is like Error but allows specifying the error type.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	requestID := w.Header().Get("X-Request-ID")
	WriteError(w, &CoreError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
	})
}
