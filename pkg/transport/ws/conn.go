// Package ws implements the transport contract over a WebSocket connection
// from github.com/gorilla/websocket.
//
// Each logical exchange is a pair of frames correlated by id, so both
// endpoints can have any number of exchanges in flight over the single
// WebSocket stream: the initiator sends a "call" frame and the peer answers
// with a "reply" frame carrying the same id.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/transport"
)

// MaxPayload caps a single frame, matching the server's read limit.
const MaxPayload = 1024 * 1024

const (
	kindCall  = "call"
	kindReply = "reply"
)

// frame is the on-wire envelope for one direction of an exchange.
type frame struct {
	ID   uint64          `json:"id"`
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// Conn adapts a gorilla WebSocket connection to transport.Conn.
type Conn struct {
	ws     *websocket.Conn
	remote string

	// writeMu synchronizes writes; gorilla permits one concurrent writer.
	writeMu sync.Mutex

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan *model.Response

	cb atomic.Value // transport.Callback

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

var _ transport.Conn = (*Conn)(nil)

// newConn wraps ws and starts its read loop. remote is the peer address the
// core will key on.
func newConn(ws *websocket.Conn, remote string) *Conn {
	c := &Conn{
		ws:      ws,
		remote:  remote,
		pending: make(map[uint64]chan *model.Response),
		done:    make(chan struct{}),
	}
	ws.SetReadLimit(MaxPayload)
	go c.readLoop()
	return c
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// Close tears the connection down and fails every in-flight call.
func (c *Conn) Close() error {
	c.fail(transport.ErrConnectionClosed)
	return nil
}

// fail records the terminal error once and releases everything waiting on the
// connection.
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		_ = c.ws.Close()
		close(c.done)

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
}

func (c *Conn) terminalErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		return transport.ErrConnectionClosed
	}
	return c.err
}

// Call sends req as a new exchange and waits for the peer's response.
func (c *Conn) Call(ctx context.Context, req *model.Request) (*model.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ws: encode request: %w", err)
	}

	id := c.nextID.Add(1)
	ch := make(chan *model.Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(frame{ID: id, Kind: kindCall, Body: body}); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, c.terminalErr()
		}
		return resp, nil
	case <-c.done:
		return nil, c.terminalErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Serve delivers inbound calls to cb until the connection ends.
func (c *Conn) Serve(ctx context.Context, cb transport.Callback) error {
	c.cb.Store(cb)
	select {
	case <-ctx.Done():
		c.fail(ctx.Err())
		return ctx.Err()
	case <-c.done:
		return c.terminalErr()
	}
}

func (c *Conn) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("ws: encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return c.terminalErr()
	default:
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("ws: write frame: %w", err)
	}
	return nil
}

// readLoop is the single reader. Call replies are routed to their waiter;
// inbound calls are handled on their own goroutine so a slow handler never
// stalls the loop.
func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.fail(transport.ErrConnectionClosed)
			} else {
				c.fail(fmt.Errorf("ws: read: %w", err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Error("ws: malformed frame", "remote", c.remote, "err", err)
			continue
		}

		switch f.Kind {
		case kindReply:
			var resp model.Response
			if err := json.Unmarshal(f.Body, &resp); err != nil {
				slog.Error("ws: malformed reply", "remote", c.remote, "err", err)
				continue
			}
			c.pendingMu.Lock()
			ch, ok := c.pending[f.ID]
			if ok {
				delete(c.pending, f.ID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- &resp
				close(ch)
			}

		case kindCall:
			go c.handleCall(f)

		default:
			slog.Error("ws: unknown frame kind", "remote", c.remote, "kind", f.Kind)
		}
	}
}

func (c *Conn) handleCall(f frame) {
	resp := c.dispatchCall(f.Body)
	body, err := json.Marshal(resp)
	if err != nil {
		slog.Error("ws: encode response", "remote", c.remote, "err", err)
		return
	}
	if err := c.writeFrame(frame{ID: f.ID, Kind: kindReply, Body: body}); err != nil {
		slog.Error("ws: write response", "remote", c.remote, "err", err)
	}
}

func (c *Conn) dispatchCall(body json.RawMessage) *model.Response {
	var req model.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return model.NewResponse(model.CodeInternalError, "malformed request: "+err.Error())
	}
	// The connection, not the client, decides the remote address.
	req.Base.RemoteAddr = c.remote

	cb, _ := c.cb.Load().(transport.Callback)
	if cb == nil {
		return model.NewResponse(model.CodeInternalError, "connection not serving yet")
	}

	resp, err := cb.HandleRequest(context.Background(), &req)
	if err != nil {
		return model.NewResponse(model.CodeInternalError, err.Error())
	}
	return resp
}
