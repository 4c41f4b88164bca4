package ws

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fanlv/chat-room/pkg/transport"
)

// Path is the HTTP path the chat endpoint is served on.
const Path = "/chat"

// ListenerConfig configures a WebSocket listener.
type ListenerConfig struct {
	Addr     string // bind address, e.g. ":5858"
	CertFile string // TLS certificate path; generated if empty
	KeyFile  string // TLS key path; generated if empty
	DataDir  string // directory for generated cert material
	NoTLS    bool   // plain ws:// listener, for tests and local runs
}

// Listener upgrades inbound HTTP connections to WebSocket and hands them out
// through Accept.
type Listener struct {
	addr    string
	httpSrv *http.Server
	netLn   net.Listener
	accepts chan *Conn

	closeOnce sync.Once
	done      chan struct{}
}

var _ transport.Listener = (*Listener)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are dedicated chat binaries, not browsers; origin checks do not apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Listen binds cfg.Addr and starts serving upgrades in the background.
func Listen(cfg ListenerConfig) (*Listener, error) {
	l := &Listener{
		addr:    cfg.Addr,
		accepts: make(chan *Conn, 16),
		done:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.handleUpgrade)

	var netLn net.Listener
	var err error
	if cfg.NoTLS {
		netLn, err = net.Listen("tcp", cfg.Addr)
	} else {
		var cert tls.Certificate
		cert, err = loadOrGenerateTLS(cfg)
		if err != nil {
			return nil, fmt.Errorf("ws: tls: %w", err)
		}
		netLn, err = tls.Listen("tcp", cfg.Addr, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("ws: listen %s: %w", cfg.Addr, err)
	}

	l.netLn = netLn
	l.addr = netLn.Addr().String()
	l.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := l.httpSrv.Serve(netLn); err != nil && err != http.ErrServerClosed {
			select {
			case <-l.done:
			default:
				slog.Error("ws: http serve", "err", err)
			}
		}
	}()

	return l, nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	conn := newConn(wsConn, wsConn.RemoteAddr().String())
	select {
	case l.accepts <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}

// Accept returns the next inbound connection.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case conn := <-l.accepts:
		return conn, nil
	case <-l.done:
		return nil, transport.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() string {
	return l.addr
}

// Close stops accepting and shuts the HTTP server down.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.httpSrv.Close()
	})
	return nil
}

// loadOrGenerateTLS loads the configured cert/key pair or generates a
// self-signed one under cfg.DataDir.
func loadOrGenerateTLS(cfg ListenerConfig) (tls.Certificate, error) {
	certPath := cfg.CertFile
	keyPath := cfg.KeyFile
	if certPath == "" {
		certPath = filepath.Join(cfg.DataDir, "server.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(cfg.DataDir, "server.key")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		slog.Info("loaded TLS certificate", "cert", certPath)
		return cert, nil
	}

	slog.Info("generating self-signed TLS certificate")
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{Organization: []string{"chat-room"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create cert: %w", err)
	}

	certOut, err := os.Create(certPath) //nolint:gosec // path from server config
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("write cert: %w", err)
	}
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		_ = certOut.Close()
		return tls.Certificate{}, fmt.Errorf("encode cert: %w", err)
	}
	if err := certOut.Close(); err != nil {
		return tls.Certificate{}, fmt.Errorf("close cert file: %w", err)
	}

	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal key: %w", err)
	}
	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) //nolint:gosec // path from server config
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("write key: %w", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}); err != nil {
		_ = keyOut.Close()
		return tls.Certificate{}, fmt.Errorf("encode key: %w", err)
	}
	if err := keyOut.Close(); err != nil {
		return tls.Certificate{}, fmt.Errorf("close key file: %w", err)
	}

	slog.Info("TLS certificate generated", "cert", certPath, "key", keyPath)
	return tls.LoadX509KeyPair(certPath, keyPath)
}
