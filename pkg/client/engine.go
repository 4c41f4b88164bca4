// Package client implements the chat-room client engine: connection
// management, login, and handling of server pushes. Rendering is left to the
// frontend through the On* callbacks.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fanlv/chat-room/pkg/dispatch"
	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/transport"
	"github.com/fanlv/chat-room/pkg/transport/ws"
)

// reconnectDelay is the pause between connection attempts.
const reconnectDelay = time.Second

// Config holds everything needed to reach a server and join a room.
type Config struct {
	ServerAddr string `yaml:"server_addr"`
	UserName   string `yaml:"user_name"`
	Password   string `yaml:"password"`
	RoomID     int64  `yaml:"room_id"`

	CACert   string `yaml:"ca_cert"`
	Insecure bool   `yaml:"insecure"`
	NoTLS    bool   `yaml:"no_tls"`
}

// Engine drives one client: it dials, logs in, serves server pushes, and
// reconnects when the connection drops. A rejected login ends the engine; a
// failed connection is retried forever.
type Engine struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher

	mu        sync.RWMutex
	conn      transport.Conn
	sessionID string

	// Callbacks for the frontend. All may be nil.
	OnMessage  func(msg model.Message)
	OnHistory  func(messages []model.Message)
	OnRoster   func(users []model.User)
	OnPresence func(user model.User, online bool, when int64)
	OnStatus   func(line string)
}

// NewEngine creates an engine for cfg with its push handlers registered.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg:        cfg,
		dispatcher: dispatch.New(),
	}
	e.dispatcher.Register(model.TagNewMessage, e.handleNewMessage)
	e.dispatcher.Register(model.TagChatMessageList, e.handleMessageList)
	e.dispatcher.Register(model.TagUserOnline, e.handleUserOnline)
	e.dispatcher.Register(model.TagUserOffline, e.handleUserOffline)
	e.dispatcher.Register(model.TagChatUserList, e.handleUserList)
	return e
}

// Run connects and serves until ctx is cancelled or a login is rejected.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.status("connecting...")
		conn, err := ws.Dial(ctx, ws.DialConfig{
			Addr:     e.cfg.ServerAddr,
			CACert:   e.cfg.CACert,
			Insecure: e.cfg.Insecure,
			NoTLS:    e.cfg.NoTLS,
		})
		if err != nil {
			e.status("connect failed, will retry: " + err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
			continue
		}

		e.setConn(conn)
		e.status(fmt.Sprintf("logging in as %s to room %d, please wait", e.cfg.UserName, e.cfg.RoomID))

		sessionID, err := e.login(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("client: login: %w", err)
		}
		e.setSessionID(sessionID)
		e.status("login success")

		err = conn.Serve(ctx, transport.CallbackFunc(e.handlePush))
		if err != nil && ctx.Err() == nil {
			slog.Error("connection lost", "err", err)
			e.status("connection lost, reconnecting...")
		}
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// login performs the login exchange and returns the granted session id.
// A non-zero response code is terminal, not retried.
func (e *Engine) login(ctx context.Context, conn transport.Conn) (string, error) {
	req := model.NewRequest(model.Command{Login: &model.Login{
		UserName: e.cfg.UserName,
		Password: e.cfg.Password,
		RoomID:   e.cfg.RoomID,
	}})

	resp, err := conn.Call(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("rejected (code %d): %s", resp.Code, resp.Message)
	}
	return resp.Data, nil
}

// SendText sends one chat message using the current session.
func (e *Engine) SendText(ctx context.Context, text string) error {
	e.mu.RLock()
	conn := e.conn
	sessionID := e.sessionID
	e.mu.RUnlock()
	if conn == nil || sessionID == "" {
		return fmt.Errorf("client: not logged in")
	}

	req := model.NewRequest(model.Command{SendTextMessage: &model.SendTextMessage{
		Text:   text,
		RoomID: e.cfg.RoomID,
	}})
	req.Base.SessionID = sessionID

	resp, err := conn.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("client: send rejected (code %d): %s", resp.Code, resp.Message)
	}
	return nil
}

// handlePush routes one server push through the dispatcher.
func (e *Engine) handlePush(ctx context.Context, req *model.Request) (*model.Response, error) {
	return e.dispatcher.Dispatch(ctx, req)
}

func (e *Engine) handleNewMessage(_ context.Context, req *model.Request) (*model.Response, error) {
	msg := req.Command.NewMessage
	if msg == nil {
		return nil, fmt.Errorf("client: %s payload missing", req.CommandTag)
	}
	if e.OnMessage != nil {
		e.OnMessage(*msg)
	}
	return model.Success("ok"), nil
}

func (e *Engine) handleMessageList(_ context.Context, req *model.Request) (*model.Response, error) {
	list := req.Command.ChatMessageList
	if list == nil {
		return nil, fmt.Errorf("client: %s payload missing", req.CommandTag)
	}
	if e.OnHistory != nil {
		e.OnHistory(list.Messages)
	}
	return model.Success("ok"), nil
}

func (e *Engine) handleUserOnline(_ context.Context, req *model.Request) (*model.Response, error) {
	event := req.Command.UserOnline
	if event == nil {
		return nil, fmt.Errorf("client: %s payload missing", req.CommandTag)
	}
	if e.OnPresence != nil {
		e.OnPresence(event.User, true, event.Time)
	}
	return model.Success("ok"), nil
}

func (e *Engine) handleUserOffline(_ context.Context, req *model.Request) (*model.Response, error) {
	event := req.Command.UserOffline
	if event == nil {
		return nil, fmt.Errorf("client: %s payload missing", req.CommandTag)
	}
	if e.OnPresence != nil {
		e.OnPresence(event.User, false, event.Time)
	}
	return model.Success("ok"), nil
}

func (e *Engine) handleUserList(_ context.Context, req *model.Request) (*model.Response, error) {
	list := req.Command.ChatUserList
	if list == nil {
		return nil, fmt.Errorf("client: %s payload missing", req.CommandTag)
	}
	if e.OnRoster != nil {
		e.OnRoster(list.Users)
	}
	return model.Success("ok"), nil
}

func (e *Engine) setConn(conn transport.Conn) {
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
}

func (e *Engine) setSessionID(id string) {
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
}

// SessionID returns the session id granted by the last successful login.
func (e *Engine) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionID
}

func (e *Engine) status(line string) {
	if e.OnStatus != nil {
		e.OnStatus(line)
	}
}
