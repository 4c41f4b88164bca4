package server

import (
	"fmt"

	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/store"
)

// SessionGuard authorizes every inbound command except login against a valid,
// address-matching session. A failure becomes a coded response upstream; the
// connection is never torn down for one bad request.
type SessionGuard struct {
	sessions *store.SessionStore
}

// NewSessionGuard creates a guard over sessions.
func NewSessionGuard(sessions *store.SessionStore) *SessionGuard {
	return &SessionGuard{sessions: sessions}
}

// Authorize validates req's session. Login is the only exempt tag. The stored
// session's address must equal the request's remote address, which blocks a
// stolen session id replayed from a different connection.
func (g *SessionGuard) Authorize(req *model.Request) error {
	if req.CommandTag == model.TagLogin {
		return nil
	}

	sess, ok := g.sessions.Get(req.Base.SessionID)
	if !ok {
		return fmt.Errorf("session id invalid")
	}
	if sess.Address != req.Base.RemoteAddr {
		return fmt.Errorf("address %s invalid for session", req.Base.RemoteAddr)
	}
	return nil
}
