// Package store holds the server's in-memory directories: sessions, room
// membership, message history, and the live-connection registry. Each store
// has its own RWMutex and read accessors return owned copies, never
// references, so no caller ever holds a lock across a blocking operation.
// Cross-store consistency is maintained by sequencing writes, not by a
// cross-store transaction.
package store

import (
	"sync"

	"github.com/fanlv/chat-room/pkg/model"
)

// SessionStore indexes active sessions two ways: by session id and by remote
// address. The two indices are written and removed together; a session exists
// in one iff it exists in the other.
type SessionStore struct {
	mu     sync.RWMutex
	byID   map[string]model.UserSession
	byAddr map[string]model.UserSession
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:   make(map[string]model.UserSession),
		byAddr: make(map[string]model.UserSession),
	}
}

// Save records sess under both its session id and its address. A re-login
// from the same address replaces the previous session entirely, so the stale
// session id cannot linger in the id index.
func (s *SessionStore) Save(sess model.UserSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byAddr[sess.Address]; ok {
		delete(s.byID, prev.SessionID)
	}
	s.byID[sess.SessionID] = sess
	s.byAddr[sess.Address] = sess
}

// Get looks a session up by id.
func (s *SessionStore) Get(sessionID string) (model.UserSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[sessionID]
	return sess, ok
}

// GetByAddr looks a session up by remote address.
func (s *SessionStore) GetByAddr(addr string) (model.UserSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byAddr[addr]
	return sess, ok
}

// Remove deletes the session for addr from both indices and returns it.
// Removing an absent address is a no-op.
func (s *SessionStore) Remove(addr string) (model.UserSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byAddr[addr]
	if !ok {
		return model.UserSession{}, false
	}
	delete(s.byAddr, addr)
	delete(s.byID, sess.SessionID)
	return sess, true
}

// Count returns the number of active sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
