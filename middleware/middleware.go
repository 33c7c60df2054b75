// Package middleware provides the cross-cutting HTTP handler wrappers an
// Endpoint applies ahead of routing: request ID tagging, timing, panic
// recovery, and CORS.
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/arcmesh/coregate/coreerr"
)

// RequestTimer measures request processing time and sets the
// X-Response-Time header in the response.
func RequestTimer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		w.Header().Set("X-Response-Time", time.Since(start).String())
	})
}

// PanicRecovery recovers from panics in a handler and translates them into
// a 500 response instead of crashing the connection's goroutine.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				coreerr.ErrorWithType(w, "internal server error", coreerr.ApplicationError, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS sets permissive cross-origin headers and short-circuits preflight
// OPTIONS requests. Reference applications that need a stricter policy
// should layer their own middleware in front of this one.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
