package coreerr

import (
	"errors"
)

// RequestIDKey is the zap field name used to correlate log lines to a
// single request. The request ID itself travels in the X-Request-ID header.
const RequestIDKey = "request_id"

// ErrorResponse is the standardized JSON body returned to clients when a
// CoreError is written.
type ErrorResponse struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// As is a thin wrapper around errors.As for call sites that don't want to
// import both packages under different names.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
