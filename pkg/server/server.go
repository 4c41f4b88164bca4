// Package server implements the chat-room server: command dispatch, session
// and room bookkeeping, and presence/message fanout.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fanlv/chat-room/pkg/archive"
	"github.com/fanlv/chat-room/pkg/auth"
	"github.com/fanlv/chat-room/pkg/dispatch"
	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/store"
	"github.com/fanlv/chat-room/pkg/transport"
	"github.com/fanlv/chat-room/pkg/transport/ws"
)

// Server coordinates the shared chat state across all client connections.
type Server struct {
	cfg Config

	sessions *store.SessionStore
	rooms    *store.RoomStore
	messages *store.MessageStore
	conns    *store.ConnRegistry

	dispatcher  *dispatch.Dispatcher
	guard       *SessionGuard
	broadcaster *Broadcaster
	checker     auth.Checker
	metrics     *Metrics
	archive     *archive.Archive // nil when archiving is disabled

	listener transport.Listener
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Server. The password checker is built from cfg; the archive
// is opened lazily by Run when a path is configured.
func New(cfg Config) (*Server, error) {
	checker, err := cfg.Checker()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		sessions:   store.NewSessionStore(),
		rooms:      store.NewRoomStore(),
		messages:   store.NewMessageStore(),
		conns:      store.NewConnRegistry(),
		dispatcher: dispatch.New(),
		checker:    checker,
		metrics:    NewMetrics(),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.guard = NewSessionGuard(s.sessions)
	s.broadcaster = NewBroadcaster(s.rooms, s.conns, s.metrics)
	s.registerHandlers()
	return s, nil
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// HandleRequest implements transport.Callback: guard first, then dispatch.
// Authorization failures become a coded response; a hard handler error
// propagates to the transport boundary, which answers with code 5000 and
// keeps the connection open.
func (s *Server) HandleRequest(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := s.guard.Authorize(req); err != nil {
		slog.Error("received invalid session request",
			"remote", req.Base.RemoteAddr, "tag", req.CommandTag, "err", err)
		return model.NewResponse(model.CodeSessionInvalid, err.Error()), nil
	}
	return s.dispatcher.Dispatch(ctx, req)
}

// ServeConn registers conn and serves its requests until the connection ends,
// then runs kick-out exactly once. It blocks and is meant to run on its own
// goroutine per connection.
func (s *Server) ServeConn(conn transport.Conn) {
	remote := conn.RemoteAddr()
	s.conns.Put(remote, conn)
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "remote", remote)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.metrics.ActiveConnections.Add(-1)
			s.KickOut(remote)
		})
	}
	defer cleanup()

	err := conn.Serve(s.ctx, s)
	if errors.Is(err, transport.ErrConnectionClosed) {
		slog.Info("remote connection lost", "remote", remote)
	} else if err != nil {
		slog.Error("connection failed", "remote", remote, "err", err)
	}
}

// KickOut runs the disconnect cleanup for addr: drop the connection handle,
// purge the session from both of its indices and from room membership, and
// announce the departure. Every step tolerates already-absent data, so a
// race between a read error and an external close resolves to one effective
// cleanup.
func (s *Server) KickOut(addr string) {
	s.conns.Remove(addr)

	sess, ok := s.sessions.GetByAddr(addr)
	if !ok {
		// Nothing to clean up or announce.
		slog.Debug("kick-out: no session", "remote", addr)
		return
	}

	if !s.rooms.Remove(sess.RoomID, addr) {
		slog.Error("kick-out: not in room membership", "remote", addr, "room", sess.RoomID)
	}
	s.sessions.Remove(addr)
	s.metrics.Kickouts.Add(1)

	s.broadcaster.UserOffline(sess)
	slog.Info("client disconnected", "user", sess.Name, "room", sess.RoomID, "remote", addr)
}

// Run starts the listener and blocks until a shutdown signal or a fatal
// accept error.
func (s *Server) Run() error {
	if s.cfg.ArchivePath != "" {
		arch, err := archive.Open(s.cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		s.archive = arch
		defer func() { _ = arch.Close() }()
		slog.Info("message archive enabled", "path", s.cfg.ArchivePath)
	}

	listener, err := ws.Listen(ws.ListenerConfig{
		Addr:     s.cfg.ListenAddr,
		CertFile: s.cfg.CertFile,
		KeyFile:  s.cfg.KeyFile,
		DataDir:  s.cfg.DataDir,
		NoTLS:    s.cfg.NoTLS,
	})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	s.listener = listener
	slog.Info("chat-room server listening", "addr", listener.Addr(), "tls", !s.cfg.NoTLS)

	s.StartOpsHTTP()
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	go s.acceptLoop(listener)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down...")
	case <-s.ctx.Done():
	}
	s.Shutdown()
	return nil
}

func (s *Server) acceptLoop(listener transport.Listener) {
	for {
		conn, err := listener.Accept(s.ctx)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, transport.ErrConnectionClosed) {
				return
			}
			slog.Error("accept error", "err", err)
			continue
		}
		go s.ServeConn(conn)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
