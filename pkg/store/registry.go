package store

import (
	"sync"

	"github.com/fanlv/chat-room/pkg/transport"
)

// ConnRegistry maps a peer address to its live connection. It is used only to
// route outbound pushes. Put overwrites silently, so a reconnect under the
// same address needs no explicit replace step; staleness is discovered by the
// caller when a send fails or a request loop terminates.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]transport.Conn
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		conns: make(map[string]transport.Conn),
	}
}

// Put registers conn under addr, replacing any previous handle.
func (c *ConnRegistry) Put(addr string, conn transport.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[addr] = conn
}

// Get returns the connection registered for addr, if any.
func (c *ConnRegistry) Get(addr string) (transport.Conn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.conns[addr]
	return conn, ok
}

// Remove drops the handle for addr. Removing an absent address is a no-op.
func (c *ConnRegistry) Remove(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, addr)
}

// Count returns the number of registered connections.
func (c *ConnRegistry) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}
