// Package dispatch routes command envelopes to registered handlers. The
// server uses one dispatcher for inbound client commands and the client uses
// another for inbound server pushes; each side registers its own disjoint tag
// set on the same abstraction.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fanlv/chat-room/pkg/model"
)

// ErrUnsupportedCommand is returned by Dispatch when no handler is registered
// for a request's command tag.
var ErrUnsupportedCommand = fmt.Errorf("dispatch: unsupported command")

// Handler processes one command.
type Handler func(ctx context.Context, req *model.Request) (*model.Response, error)

// Dispatcher maps command tags to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[model.CommandType]Handler
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[model.CommandType]Handler),
	}
}

// Register associates tag with handler. Re-registering a tag replaces the
// previous handler; last registration wins, and the replacement is logged so
// it never happens unnoticed.
func (d *Dispatcher) Register(tag model.CommandType, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[tag]; exists {
		slog.Warn("dispatch: replacing handler", "tag", tag)
	}
	d.handlers[tag] = handler
}

// Dispatch invokes the handler registered for req's command tag.
func (d *Dispatcher) Dispatch(ctx context.Context, req *model.Request) (*model.Response, error) {
	d.mu.RLock()
	handler, ok := d.handlers[req.CommandTag]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, req.CommandTag)
	}
	return handler(ctx, req)
}
