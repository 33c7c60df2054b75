// Package reqcontext provides the nested Connection/Session/Request
// context records an Endpoint attaches to each primitive object it
// handles (a socket, an HTTP/2 session, a parsed request), plus the
// lookup registry that recovers a context from that primitive.
package reqcontext

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Connection is built once per accepted socket and owns every Session and
// Request nested beneath it. It is immutable once built; the mutable
// fields (Errored) are updated under the owning Endpoint's per-connection
// sequencing, never concurrently.
type Connection struct {
	ID         string
	RemoteAddr string
	StartTime  time.Time
	Logger     *zap.Logger

	Errored bool
}

// NewConnection allocates a fresh ConnectionContext with a random
// identifier and a logger scoped with that identifier.
func NewConnection(remoteAddr string, parentLogger *zap.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:         id,
		RemoteAddr: remoteAddr,
		StartTime:  time.Now(),
		Logger:     parentLogger.With(zap.String("connection_id", id), zap.String("remote_addr", remoteAddr)),
	}
}

// Session scopes one HTTP/2 (or future multiplexed transport) session
// within a Connection. A Connection gains a Session the first time a
// multiplexed stream opens on it; HTTP/1.1 connections never create one.
type Session struct {
	ID         string
	Connection *Connection
	StartTime  time.Time
	Logger     *zap.Logger
}

// NewSession builds a SessionContext inheriting from conn.
func NewSession(conn *Connection) *Session {
	id := uuid.NewString()
	return &Session{
		ID:         id,
		Connection: conn,
		StartTime:  time.Now(),
		Logger:     conn.Logger.With(zap.String("session_id", id)),
	}
}

// Request scopes a single parsed request. It inherits from a Session when
// the connection is multiplexed, or directly from the Connection on
// HTTP/1.1. A Request cannot outlive its Connection.
type Request struct {
	ID         string
	Connection *Connection
	Session    *Session
	StartTime  time.Time
	Logger     *zap.Logger
}

// NewRequest builds a RequestContext. session may be nil for HTTP/1.1.
func NewRequest(conn *Connection, session *Session) *Request {
	id := uuid.NewString()
	logger := conn.Logger
	if session != nil {
		logger = session.Logger
	}
	return &Request{
		ID:         id,
		Connection: conn,
		Session:    session,
		StartTime:  time.Now(),
		Logger:     logger.With(zap.String("request_id", id)),
	}
}
