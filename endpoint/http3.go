package endpoint

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/quic-go/quic-go/http3"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/arcmesh/coregate/tlshost"
)

// http3Listener wraps the optional QUIC/HTTP3 listener an http2 endpoint
// may opt into alongside its TCP listener, reusing the same handler and
// host-parameters resolver.
type http3Listener struct {
	server *http3.Server
}

// startHTTP3Listener binds a UDP socket for cfg and serves handler over
// HTTP/3, tuning the kernel receive buffer the way the teacher's
// configureUDPBufferSize helper does for its own QUIC listener.
func startHTTP3Listener(cfg Config, handler http.Handler, hostParams tlshost.HostParameters, logger *zap.Logger) (*http3Listener, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("endpoint: resolve udp addr %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("endpoint: listen udp %s: %w", addr, err)
	}

	if err := configureUDPBufferSize(conn); err != nil {
		logger.Warn("could not tune udp receive buffer size", zap.Error(err))
	}

	srv := &http3.Server{
		Addr:    addr,
		Handler: handler,
		TLSConfig: &tls.Config{
			GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
				return hostParams.Certificate(hello.ServerName)
			},
			NextProtos: []string{"h3"},
		},
	}

	go func() {
		if serveErr := srv.Serve(conn); serveErr != nil {
			logger.Warn("http/3 listener stopped", zap.Error(serveErr))
		}
	}()

	return &http3Listener{server: srv}, nil
}

// Close shuts down the QUIC listener.
func (h *http3Listener) Close() error {
	return h.server.Close()
}

// configureUDPBufferSize raises the UDP socket's receive buffer so bursts
// of QUIC datagrams under load don't get dropped by the kernel before
// quic-go reads them, the same tuning knob the teacher's HTTP/3 server
// wiring exposes via golang.org/x/sys/unix.
func configureUDPBufferSize(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	const wantBufferBytes = 7 << 20 // 7MB, same floor quic-go itself recommends
	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, wantBufferBytes)
	})
	if err != nil {
		return err
	}
	return sockErr
}
