package coreerr

import "net/http"

// NewAuthError creates an authentication error (mount-level auth failures).
func NewAuthError(requestID string, message string, err error) *CoreError {
	return &CoreError{
		Type:      AuthError,
		Message:   message,
		Code:      http.StatusUnauthorized,
		RequestID: requestID,
		err:       err,
		Details: map[string]interface{}{
			"suggestion": "Please check your authentication credentials",
		},
	}
}

// NewConfigError creates a configuration error. The core treats these as
// fatal at startup.
func NewConfigError(message string, details map[string]interface{}, err error) *CoreError {
	return &CoreError{
		Type:    ConfigError,
		Message: message,
		Code:    http.StatusInternalServerError,
		Details: details,
		err:     err,
	}
}

// NewRateLimitError creates the admission error raised when a TokenBucket
// denies a connection or request.
func NewRateLimitError(requestID string, waited int64) *CoreError {
	return &CoreError{
		Type:      RateLimitError,
		Message:   "rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"waited_ms": waited,
		},
	}
}

// NewNotFoundError creates the admission error raised when routing
// fallthrough exhausts every candidate mount.
func NewNotFoundError(requestID string, host, path string) *CoreError {
	return &CoreError{
		Type:      NotFoundError,
		Message:   "no mount matches this request",
		Code:      http.StatusNotFound,
		RequestID: requestID,
		Details: map[string]interface{}{
			"host": host,
			"path": path,
		},
	}
}

// NewApplicationError creates the error an endpoint synthesizes when a
// mounted application's handler returns an error outcome.
func NewApplicationError(requestID string, message string, err error) *CoreError {
	return &CoreError{
		Type:      ApplicationError,
		Message:   message,
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewTransportError creates a transport-level error (socket/TLS failure).
func NewTransportError(requestID string, message string, err error) *CoreError {
	return &CoreError{
		Type:      TransportError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewLifecycleError creates a component init/start/stop failure.
func NewLifecycleError(component string, phase string, err error) *CoreError {
	return &CoreError{
		Type:    LifecycleError,
		Message: "component " + phase + " failed",
		Code:    http.StatusInternalServerError,
		Details: map[string]interface{}{
			"component": component,
			"phase":     phase,
		},
		err: err,
	}
}
