package endpoint

import (
	"context"
	"net"
	"net/http"

	"github.com/arcmesh/coregate/reqcontext"
)

type ctxKey int

const connCtxKey ctxKey = iota

// connState is the http.Server.ConnState hook: it runs the per-connection
// admission step (spec.md §4.4 step 1) the instant a socket is accepted,
// before any TLS handshake or HTTP parsing happens, and tears down the
// connection's context entry once the socket is gone.
func (e *Endpoint) connState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		if e.rateLimiter != nil && !e.rateLimiter.NewConnection(context.Background(), e.logger) {
			if e.metrics != nil {
				e.metrics.ConnectionsTotal.WithLabelValues(e.cfg.Name, "ratelimit-denied").Inc()
			}
			_ = conn.Close()
			return
		}
		cc := reqcontext.NewConnection(conn.RemoteAddr().String(), e.logger)
		e.connCtx.Associate(conn, cc)
		if e.metrics != nil {
			e.metrics.ConnectionsTotal.WithLabelValues(e.cfg.Name, "admitted").Inc()
			e.metrics.ActiveConnections.WithLabelValues(e.cfg.Name).Inc()
		}
	case http.StateClosed, http.StateHijacked:
		if _, ok := e.connCtx.Lookup(conn); ok {
			e.connCtx.Forget(conn)
			e.sessionCtx.Forget(conn)
			if e.metrics != nil {
				e.metrics.ActiveConnections.WithLabelValues(e.cfg.Name).Dec()
			}
		}
	}
}

// connContext is the http.Server.ConnContext hook: it threads the
// ConnectionContext built in connState into every request's
// context.Context, so the handler never has to look the socket up by
// identity more than the one time an admitted connection's context is
// constructed.
func (e *Endpoint) connContext(ctx context.Context, conn net.Conn) context.Context {
	cc, ok := e.connCtx.Lookup(conn)
	if !ok {
		// Connection was denied admission in connState and already closed;
		// http.Server may still invoke this hook on the way down. A
		// detached placeholder context keeps handler code from needing a
		// nil check it should never legitimately hit.
		cc = reqcontext.NewConnection(conn.RemoteAddr().String(), e.logger)
	}
	return context.WithValue(ctx, connCtxKey, &connHolder{conn: conn, connection: cc})
}

// connHolder bundles the raw net.Conn (the identity key for the session
// registry) with its resolved ConnectionContext.
type connHolder struct {
	conn  net.Conn
	connection *reqcontext.Connection
}

func connFromContext(ctx context.Context) *connHolder {
	h, _ := ctx.Value(connCtxKey).(*connHolder)
	return h
}

// sessionFor returns the Session context for an HTTP/2 request's
// underlying connection, creating it the first time a stream arrives on
// that connection (spec.md §4.4 step 3). HTTP/1.1 requests never acquire
// one.
func (e *Endpoint) sessionFor(h *connHolder, r *http.Request) *reqcontext.Session {
	if r.ProtoMajor < 2 || h == nil {
		return nil
	}
	return e.sessionCtx.GetOrCreate(h.conn, func() *reqcontext.Session {
		return reqcontext.NewSession(h.connection)
	})
}
