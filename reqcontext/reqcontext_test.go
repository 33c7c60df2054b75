package reqcontext

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContextNesting(t *testing.T) {
	logger := zap.NewNop()

	conn := NewConnection("10.0.0.1:5555", logger)
	require.NotEmpty(t, conn.ID)
	assert.Equal(t, "10.0.0.1:5555", conn.RemoteAddr)

	session := NewSession(conn)
	assert.Same(t, conn, session.Connection)
	assert.NotEqual(t, conn.ID, session.ID)

	withSession := NewRequest(conn, session)
	assert.Same(t, session, withSession.Session)
	assert.Same(t, conn, withSession.Connection)

	withoutSession := NewRequest(conn, nil)
	assert.Nil(t, withoutSession.Session)
	assert.Same(t, conn, withoutSession.Connection)
}

func TestRegistryLifecycle(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry[net.Conn, *Connection]()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := NewConnection(server.RemoteAddr().String(), logger)
	registry.Associate(server, cc)

	got, ok := registry.Lookup(server)
	require.True(t, ok)
	assert.Same(t, cc, got)

	_, ok = registry.Lookup(client)
	assert.False(t, ok)

	registry.Forget(server)
	_, ok = registry.Lookup(server)
	assert.False(t, ok)
}
