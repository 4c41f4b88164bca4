// Package transport defines the connection contract the chat core is built
// against. The core only ever needs two things from a connection: issue a
// request/response exchange, and serve inbound exchanges until the connection
// dies. Encryption, framing, and multiplexing live in the implementations.
package transport

import (
	"context"
	"errors"

	"github.com/fanlv/chat-room/pkg/model"
)

// ErrConnectionClosed is returned when an operation hits a connection that has
// been closed, locally or by the peer.
var ErrConnectionClosed = errors.New("transport: connection closed")

// Callback handles one inbound exchange. Implementations must be safe for
// concurrent use: exchanges on one connection may be handled in parallel.
type Callback interface {
	HandleRequest(ctx context.Context, req *model.Request) (*model.Response, error)
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(ctx context.Context, req *model.Request) (*model.Response, error)

// HandleRequest implements Callback.
func (f CallbackFunc) HandleRequest(ctx context.Context, req *model.Request) (*model.Response, error) {
	return f(ctx, req)
}

// Conn is a live, bidirectional connection to one peer. Either endpoint may
// open an exchange: the server calls Call to push events, the client calls
// Call for commands, and both serve the peer's exchanges through Serve.
type Conn interface {
	// RemoteAddr returns the peer address. It is stable for the lifetime of
	// the connection and is the key used by the connection registry.
	RemoteAddr() string

	// Call opens an exchange: it sends req and blocks until the peer's
	// response arrives, ctx is done, or the connection closes.
	Call(ctx context.Context, req *model.Request) (*model.Response, error)

	// Serve delivers inbound exchanges to cb until the connection ends.
	// It returns ErrConnectionClosed on a clean close.
	Serve(ctx context.Context, cb Callback) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a connection arrives, ctx is done, or the listener
	// is closed.
	Accept(ctx context.Context) (Conn, error)

	// Addr returns the bound listen address.
	Addr() string

	Close() error
}
