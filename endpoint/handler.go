package endpoint

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/arcmesh/coregate/application"
	"github.com/arcmesh/coregate/coreerr"
	"github.com/arcmesh/coregate/reqcontext"
	"github.com/arcmesh/coregate/requestlog"
)

// serveHTTP is the single entry point every request flows through after
// chi's middleware chain: request admission, RoutingTable dispatch with
// fallthrough, and the composed completion log line (spec.md §4.4 steps
// 4-6).
func (e *Endpoint) serveHTTP(w http.ResponseWriter, r *http.Request) {
	start := e.logSink.Now()

	if e.metrics != nil {
		e.metrics.ActiveRequests.WithLabelValues(e.cfg.Name).Inc()
		defer e.metrics.ActiveRequests.WithLabelValues(e.cfg.Name).Dec()
	}

	holder := connFromContext(r.Context())
	session := e.sessionFor(holder, r)

	var connCtx *reqcontext.Connection
	if holder != nil {
		connCtx = holder.connection
	} else {
		connCtx = reqcontext.NewConnection(r.RemoteAddr, e.logger)
	}
	reqCtx := reqcontext.NewRequest(connCtx, session)

	rec := &statusRecorder{ResponseWriter: w, sink: w, status: http.StatusOK}
	if e.rateLimiter != nil {
		rec.sink = e.rateLimiter.WrapWriter(r.Context(), w, reqCtx.Logger)
	}

	errorCode := e.dispatch(rec, r, reqCtx)

	duration := e.logSink.Now().Sub(start)
	line := requestlog.FormatLine(start, connCtx.RemoteAddr, r.Method, r.URL.RequestURI(), rec.status, rec.bytes, duration, errorCode)
	e.logSink.LogCompletedRequest(line)

	if e.metrics != nil {
		e.metrics.RequestsTotal.WithLabelValues(e.cfg.Name, fmt.Sprintf("%d", rec.status)).Inc()
		e.metrics.RequestDuration.WithLabelValues(e.cfg.Name).Observe(duration.Seconds())
		if errorCode != "" {
			e.metrics.ErrorsTotal.WithLabelValues(errorCode).Inc()
		}
	}
}

// dispatch admits the request, resolves candidate applications, and walks
// them most- to least-specific until one reports Handled, all decline
// (404), or one errors (500). It returns the normalized error code for
// the completion log line, or "" when none applies.
func (e *Endpoint) dispatch(w http.ResponseWriter, r *http.Request, reqCtx *reqcontext.Request) string {
	if e.rateLimiter != nil && !e.rateLimiter.NewRequest(r.Context(), reqCtx.Logger) {
		coreerr.WriteError(w, coreerr.NewRateLimitError(reqCtx.ID, 0))
		return "ratelimit-denied"
	}

	host := hostWithoutPort(r.Host)
	matches, err := e.routes.Find(host, r.URL.Path)
	if err != nil {
		reqCtx.Logger.Warn("malformed host header", zap.String("host", r.Host), zap.Error(err))
		coreerr.WriteError(w, coreerr.NewNotFoundError(reqCtx.ID, r.Host, r.URL.Path))
		return "bad-host"
	}

	for _, m := range matches {
		outcome, err := m.App.Handle(r.Context(), w, r, m.Dispatch)
		if err != nil {
			reqCtx.Logger.Error("application error", zap.Error(err), zap.String("base", m.Dispatch.Base))
			coreerr.WriteError(w, coreerr.NewApplicationError(reqCtx.ID, "application handler failed", err))
			return "application-error"
		}
		if outcome == application.Handled {
			return ""
		}
	}

	coreerr.WriteError(w, coreerr.NewNotFoundError(reqCtx.ID, host, r.URL.Path))
	return "not-found"
}

// statusRecorder captures the status code and byte count an Application
// writes, for the completion log line, while optionally routing writes
// through the data-rate-limited wrapper built in serveHTTP.
type statusRecorder struct {
	http.ResponseWriter
	sink        io.Writer
	status      int
	bytes       int64
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.sink.Write(p)
	r.bytes += int64(n)
	return n, err
}
