// Package endpoint implements the listener/admission/dispatch engine
// described in spec.md §4.4: a component that owns a listening socket,
// mediates per-connection and per-request admission against a
// ratelimit.RateLimiter, and drives dispatch through a routing.RoutingTable
// into mounted application.Application handlers.
package endpoint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/arcmesh/coregate/application"
	"github.com/arcmesh/coregate/lifecycle"
	appmw "github.com/arcmesh/coregate/middleware"
	"github.com/arcmesh/coregate/metrics"
	"github.com/arcmesh/coregate/ratelimit"
	"github.com/arcmesh/coregate/reqcontext"
	"github.com/arcmesh/coregate/requestlog"
	"github.com/arcmesh/coregate/routing"
	"github.com/arcmesh/coregate/tlshost"
)

// Protocol is the transport an Endpoint terminates.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolHTTP2 Protocol = "http2"
)

// Config is an Endpoint's immutable-after-init configuration, matching
// `endpoints[*].endpoint` in the consumed configuration tree.
type Config struct {
	Name         string
	Interface    string
	Port         int
	Protocol     Protocol
	Hostnames    []string
	EnableHTTP3  bool
	DrainTimeout time.Duration
}

// Endpoint owns a listening socket, a read-only-after-start RoutingTable,
// and optional RateLimiter/request-log services. It implements
// lifecycle.Component via ImplInit/ImplStart/ImplStop.
type Endpoint struct {
	cfg         Config
	routes      *routing.RoutingTable[application.Application]
	rateLimiter *ratelimit.RateLimiter
	logSink     requestlog.Sink
	hostParams  tlshost.HostParameters
	metrics     *metrics.Metrics
	logger      *zap.Logger
	problems    *lifecycle.UncaughtProblemHandler
	events      *lifecycle.EventLog

	connCtx    *reqcontext.Registry[net.Conn, *reqcontext.Connection]
	sessionCtx *reqcontext.Registry[net.Conn, *reqcontext.Session]

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	http3    *http3Listener
}

// New constructs an Endpoint. The RoutingTable must already have every
// configured mount inserted; ImplInit calls Start on it.
func New(cfg Config, routes *routing.RoutingTable[application.Application], rl *ratelimit.RateLimiter, logSink requestlog.Sink, hostParams tlshost.HostParameters, m *metrics.Metrics, logger *zap.Logger) *Endpoint {
	if logSink == nil {
		logSink = requestlog.NopSink{}
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Endpoint{
		cfg:         cfg,
		routes:      routes,
		rateLimiter: rl,
		logSink:     logSink,
		hostParams:  hostParams,
		metrics:     m,
		logger:      logger,
		connCtx:     reqcontext.NewRegistry[net.Conn, *reqcontext.Connection](),
		sessionCtx:  reqcontext.NewRegistry[net.Conn, *reqcontext.Session](),
	}
}

// SetProblems wires an UncaughtProblemHandler so panics or unexpected
// errors in the endpoint's serve goroutine are recorded centrally instead
// of only reaching this endpoint's own log stream.
func (e *Endpoint) SetProblems(h *lifecycle.UncaughtProblemHandler) {
	e.problems = h
}

// SetEvents wires the ComponentTree's event chain so this endpoint can
// Emit "endpoint-up"/"endpoint-down" events per spec.md §4.4 step "start".
func (e *Endpoint) SetEvents(l *lifecycle.EventLog) {
	e.events = l
}

func (e *Endpoint) emit(message string) {
	if e.events != nil {
		e.events.Emit("endpoint."+e.cfg.Name, message)
	}
}

// ImplInit validates that this Endpoint's references resolve and freezes
// its routing table. It binds no sockets, per spec.md §4.4.
func (e *Endpoint) ImplInit(ctx context.Context, isReload bool) error {
	switch e.cfg.Protocol {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolHTTP2:
	default:
		return fmt.Errorf("endpoint %s: invalid protocol %q", e.cfg.Name, e.cfg.Protocol)
	}
	if e.cfg.Protocol != ProtocolHTTP && e.hostParams == nil {
		return fmt.Errorf("endpoint %s: protocol %q requires a host-parameters provider", e.cfg.Name, e.cfg.Protocol)
	}
	e.routes.Start()
	return nil
}

// ImplStart begins listening on cfg.Interface:cfg.Port and serving
// connections in a background goroutine. It returns once the listening
// socket is bound, not once serving stops.
func (e *Endpoint) ImplStart(ctx context.Context, isReload bool) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.Interface, e.cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("endpoint %s: listen %s: %w", e.cfg.Name, addr, err)
	}

	handler := e.buildHandler()
	srv := &http.Server{
		Handler:     handler,
		ConnState:   e.connState,
		ConnContext: e.connContext,
		ErrorLog:    nil,
	}

	if e.cfg.Protocol != ProtocolHTTP {
		tlsConfig := &tls.Config{
			GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
				return e.hostParams.Certificate(hello.ServerName)
			},
		}
		if e.cfg.Protocol == ProtocolHTTP2 {
			tlsConfig.NextProtos = []string{"h2", "http/1.1"}
		}
		srv.TLSConfig = tlsConfig
		ln = tls.NewListener(ln, tlsConfig)
	}

	e.mu.Lock()
	e.server = srv
	e.listener = ln
	e.mu.Unlock()

	go func() {
		if e.problems != nil {
			defer e.problems.Recover("endpoint." + e.cfg.Name)
		}
		serveErr := srv.Serve(ln)
		if serveErr != nil && serveErr != http.ErrServerClosed {
			e.logger.Error("endpoint listener stopped with error", zap.String("endpoint", e.cfg.Name), zap.Error(serveErr))
			if e.problems != nil {
				e.problems.Record("endpoint."+e.cfg.Name, serveErr)
			}
		}
	}()

	if e.cfg.Protocol == ProtocolHTTP2 && e.cfg.EnableHTTP3 {
		h3, err := startHTTP3Listener(e.cfg, handler, e.hostParams, e.logger)
		if err != nil {
			e.logger.Warn("http/3 listener failed to start, continuing on TCP only",
				zap.String("endpoint", e.cfg.Name), zap.Error(err))
		} else {
			e.mu.Lock()
			e.http3 = h3
			e.mu.Unlock()
		}
	}

	e.logger.Info("endpoint up",
		zap.String("endpoint", e.cfg.Name),
		zap.String("address", addr),
		zap.String("protocol", string(e.cfg.Protocol)))
	if e.metrics != nil {
		e.metrics.ActiveConnections.WithLabelValues(e.cfg.Name).Set(0)
	}
	e.emit("endpoint-up")
	return nil
}

// ImplStop stops accepting new connections and drains in-flight requests
// up to cfg.DrainTimeout, then forcibly closes remaining sockets. It
// returns only after the listening socket is fully closed.
func (e *Endpoint) ImplStop(ctx context.Context, willReload bool) error {
	e.mu.Lock()
	srv := e.server
	h3 := e.http3
	e.mu.Unlock()

	if e.rateLimiter != nil {
		e.rateLimiter.Stop()
	}

	if srv == nil {
		return nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, e.cfg.DrainTimeout)
	defer cancel()

	err := srv.Shutdown(drainCtx)
	if err != nil {
		e.logger.Warn("graceful shutdown deadline exceeded, forcing close",
			zap.String("endpoint", e.cfg.Name), zap.Error(err))
		_ = srv.Close()
	}

	if h3 != nil {
		_ = h3.Close()
	}

	e.logger.Info("endpoint down", zap.String("endpoint", e.cfg.Name))
	e.emit("endpoint-down")
	return nil
}

// buildHandler composes the chi router every request is dispatched
// through: the cross-cutting middleware chain ahead of the RoutingTable
// lookup that chi's own tree can't express (host-then-wildcard-path
// longest-prefix matching).
func (e *Endpoint) buildHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(appmw.RequestID)
	r.Use(appmw.RequestTimer)
	r.Handle("/*", http.HandlerFunc(e.serveHTTP))
	return r
}

func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.ToLower(host)
}
