package client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/server"
	"github.com/fanlv/chat-room/pkg/transport/ws"
)

// startServer runs a real server on a loopback port and returns its address.
func startServer(t *testing.T) string {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.NoTLS = true
	cfg.OpsAddr = ""
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	listener, err := ws.Listen(ws.ListenerConfig{Addr: "127.0.0.1:0", NoTLS: true})
	if err != nil {
		t.Fatalf("ws.Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			conn, err := listener.Accept(ctx)
			if err != nil {
				return
			}
			go srv.ServeConn(conn)
		}
	}()

	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
		_ = listener.Close()
	})
	return listener.Addr()
}

// startEngine runs an engine for name and waits until it is logged in.
func startEngine(t *testing.T, ctx context.Context, addr, name string) *Engine {
	t.Helper()

	engine := NewEngine(Config{
		ServerAddr: addr,
		UserName:   name,
		Password:   "666666",
		RoomID:     1,
		NoTLS:      true,
	})
	go func() { _ = engine.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for engine.SessionID() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("engine %s: login timed out", name)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return engine
}

func TestEngineSendAndReceive(t *testing.T) {
	addr := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceGot := make(chan model.Message, 8)
	alice := NewEngine(Config{
		ServerAddr: addr,
		UserName:   "alice",
		Password:   "666666",
		RoomID:     1,
		NoTLS:      true,
	})
	alice.OnMessage = func(msg model.Message) { aliceGot <- msg }
	go func() { _ = alice.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for alice.SessionID() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("alice: login timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bob := startEngine(t, ctx, addr, "bob")
	if err := bob.SendText(ctx, "hello from bob"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case msg := <-aliceGot:
		if msg.Content != "hello from bob" || msg.User.UserName != "bob" {
			t.Fatalf("OnMessage: got %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("alice never received bob's message")
	}
}

func TestEngineReceivesOwnEcho(t *testing.T) {
	addr := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan model.Message, 8)
	engine := NewEngine(Config{
		ServerAddr: addr,
		UserName:   "alice",
		Password:   "666666",
		RoomID:     1,
		NoTLS:      true,
	})
	engine.OnMessage = func(msg model.Message) { got <- msg }
	go func() { _ = engine.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for engine.SessionID() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("login timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := engine.SendText(ctx, "talking to myself"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case msg := <-got:
		if msg.Content != "talking to myself" || msg.User.UserName != "alice" {
			t.Fatalf("OnMessage: got %+v, want the sender's own echo", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("sender never received its own echo")
	}
}

func TestEngineLoginRejectedIsTerminal(t *testing.T) {
	addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine := NewEngine(Config{
		ServerAddr: addr,
		UserName:   "mallory",
		Password:   "wrong",
		RoomID:     1,
		NoTLS:      true,
	})

	err := engine.Run(ctx)
	if err == nil || ctx.Err() != nil {
		t.Fatalf("Run: rejected login should end the engine, got %v", err)
	}
	if !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("Run: got %v, want a rejection error", err)
	}
}

func TestEngineSendBeforeLogin(t *testing.T) {
	engine := NewEngine(Config{})
	if err := engine.SendText(context.Background(), "too early"); err == nil {
		t.Fatalf("SendText: succeeded with no session")
	}
}

func TestEnginePushHandlers(t *testing.T) {
	engine := NewEngine(Config{})

	var gotRoster []model.User
	engine.OnRoster = func(users []model.User) { gotRoster = users }

	req := model.NewRequest(model.Command{ChatUserList: &model.ChatUserList{
		Users: []model.User{{UserName: "alice"}, {UserName: "bob"}},
	}})
	resp, err := engine.handlePush(context.Background(), req)
	if err != nil {
		t.Fatalf("handlePush: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("handlePush: %+v", resp)
	}
	if len(gotRoster) != 2 || gotRoster[0].UserName != "alice" {
		t.Fatalf("OnRoster: got %+v", gotRoster)
	}

	// A push with a tag but no matching payload is a hard error.
	bad := &model.Request{CommandTag: model.TagNewMessage}
	if _, err := engine.handlePush(context.Background(), bad); err == nil {
		t.Fatalf("handlePush: accepted a payload-less push")
	}
}
