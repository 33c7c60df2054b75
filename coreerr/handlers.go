// Package coreerr also provides panic-recovery middleware and error logging
// helpers shared by every endpoint's request pipeline.
package coreerr

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler wraps an http.Handler and recovers from panics raised by a
// mounted application's handler. It logs the panic with its stack trace and
// writes a 500 ApplicationError response carrying the request ID, so a
// single misbehaving application cannot take a whole connection down.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					stack := debug.Stack()
					requestID := r.Header.Get("X-Request-ID")
					logger.Error("panic recovered from application handler",
						zap.Any("error", err),
						zap.ByteString("stacktrace", stack),
						zap.String(RequestIDKey, requestID),
					)
					WriteError(w, NewApplicationError(requestID, "an internal error occurred", nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs an error with its full context: type, message, status code,
// request ID, and any structured details a CoreError carries.
func LogError(logger *zap.Logger, err error, requestID string) {
	if coreErr, ok := err.(*CoreError); ok {
		logger.Error("request error",
			zap.String("error_type", string(coreErr.Type)),
			zap.String("message", coreErr.Message),
			zap.Int("code", coreErr.Code),
			zap.String(RequestIDKey, requestID),
			zap.Any("details", coreErr.Details),
		)
		return
	}
	logger.Error("unexpected error",
		zap.Error(err),
		zap.String(RequestIDKey, requestID),
	)
}
