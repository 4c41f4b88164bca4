package ws

import (
	"context"
	"testing"
	"time"

	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/transport"
)

// echoCallback answers every call with a success response carrying the
// request's command tag.
func echoCallback() transport.Callback {
	return transport.CallbackFunc(func(_ context.Context, req *model.Request) (*model.Response, error) {
		return model.SuccessData("echo", string(req.CommandTag)), nil
	})
}

// startPair spins up a plain-ws listener on a loopback port and dials it,
// returning both ends of the connection.
func startPair(t *testing.T) (server transport.Conn, client transport.Conn) {
	t.Helper()

	listener, err := Listen(ListenerConfig{Addr: "127.0.0.1:0", NoTLS: true})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialErr := make(chan error, 1)
	go func() {
		c, err := Dial(ctx, DialConfig{Addr: listener.Addr(), NoTLS: true})
		client = c
		dialErr <- err
	}()

	server, err = listener.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := <-dialErr; err != nil {
		t.Fatalf("Dial: %v", err)
	}

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func TestCallRoundTrip(t *testing.T) {
	server, client := startPair(t)

	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go func() { _ = server.Serve(serveCtx, echoCallback()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := model.NewRequest(model.Command{Login: &model.Login{UserName: "alice", Password: "666666", RoomID: 1}})
	resp, err := client.Call(ctx, req)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.OK() || resp.Data != string(model.TagLogin) {
		t.Fatalf("Call: got %+v, want echoed %s", resp, model.TagLogin)
	}
}

func TestServerStampsRemoteAddr(t *testing.T) {
	server, client := startPair(t)

	got := make(chan string, 1)
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go func() {
		_ = server.Serve(serveCtx, transport.CallbackFunc(
			func(_ context.Context, req *model.Request) (*model.Response, error) {
				got <- req.Base.RemoteAddr
				return model.Success("ok"), nil
			}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The client lies about its address; the connection overrides it.
	req := model.NewRequest(model.Command{Login: &model.Login{}})
	req.Base.RemoteAddr = "1.2.3.4:5"
	if _, err := client.Call(ctx, req); err != nil {
		t.Fatalf("Call: %v", err)
	}

	select {
	case addr := <-got:
		if addr == "1.2.3.4:5" || addr == "" {
			t.Fatalf("RemoteAddr: server saw %q, want the connection's address", addr)
		}
		if addr != server.RemoteAddr() {
			t.Fatalf("RemoteAddr: stamped %q, conn reports %q", addr, server.RemoteAddr())
		}
	case <-ctx.Done():
		t.Fatalf("handler never ran")
	}
}

func TestServerInitiatedPush(t *testing.T) {
	server, client := startPair(t)

	// Both ends serve; the push flows server-to-client.
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go func() { _ = server.Serve(serveCtx, echoCallback()) }()

	received := make(chan *model.Request, 1)
	go func() {
		_ = client.Serve(serveCtx, transport.CallbackFunc(
			func(_ context.Context, req *model.Request) (*model.Response, error) {
				received <- req
				return model.Success("ok"), nil
			}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	push := model.NewRequest(model.Command{NewMessage: &model.Message{Content: "hi"}})
	resp, err := server.Call(ctx, push)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("Call: push rejected: %+v", resp)
	}

	select {
	case req := <-received:
		if req.CommandTag != model.TagNewMessage || req.Command.NewMessage.Content != "hi" {
			t.Fatalf("push: got %+v", req)
		}
	case <-ctx.Done():
		t.Fatalf("push never arrived")
	}
}

func TestCallBeforeServeGetsInternalError(t *testing.T) {
	server, client := startPair(t)
	_ = server // never serves

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, model.NewRequest(model.Command{Login: &model.Login{}}))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Code != model.CodeInternalError {
		t.Fatalf("Call before Serve: code %d, want %d", resp.Code, model.CodeInternalError)
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	_, client := startPair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Call(ctx, model.NewRequest(model.Command{Login: &model.Login{}})); err == nil {
		t.Fatalf("Call: succeeded on a closed connection")
	}
}
