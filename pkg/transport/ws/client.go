package ws

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fanlv/chat-room/pkg/transport"
)

// DialConfig configures an outbound connection.
type DialConfig struct {
	// Addr is the server host:port.
	Addr string
	// CACert optionally points at a PEM certificate to trust; used with
	// self-signed server certs.
	CACert string
	// Insecure skips server certificate verification.
	Insecure bool
	// NoTLS dials ws:// instead of wss://.
	NoTLS bool
	// Timeout bounds the handshake. Defaults to 10s.
	Timeout time.Duration
}

// Dial connects to a chat-room server and returns the live connection.
func Dial(ctx context.Context, cfg DialConfig) (transport.Conn, error) {
	scheme := "wss"
	if cfg.NoTLS {
		scheme = "ws"
	}
	u := url.URL{Scheme: scheme, Host: cfg.Addr, Path: Path}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.Timeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	if !cfg.NoTLS {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS13}
		if cfg.Insecure {
			tlsCfg.InsecureSkipVerify = true //nolint:gosec // explicit opt-in for self-signed servers
		}
		if cfg.CACert != "" {
			pem, err := os.ReadFile(cfg.CACert) //nolint:gosec // path from client config
			if err != nil {
				return nil, fmt.Errorf("ws: read ca cert: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("ws: no certificates in %s", cfg.CACert)
			}
			tlsCfg.RootCAs = pool
		}
		dialer.TLSClientConfig = tlsCfg
	}

	wsConn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", u.String(), err)
	}

	// The client keys nothing on addresses; the local address is only used
	// for logging.
	return newConn(wsConn, wsConn.RemoteAddr().String()), nil
}
