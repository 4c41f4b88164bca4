package store

import (
	"sync"

	"github.com/fanlv/chat-room/pkg/model"
)

// MessageStore keeps per-room message history, append-only, for the lifetime
// of the process.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[int64][]model.Message
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[int64][]model.Message),
	}
}

// Append adds msg to its room's history. The room id comes from the message's
// user snapshot.
func (m *MessageStore) Append(msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID := msg.User.RoomID
	m.messages[roomID] = append(m.messages[roomID], msg)
}

// History returns a copy of roomID's messages in append order. An unknown
// room yields an empty slice.
func (m *MessageStore) History(roomID int64) []model.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.messages[roomID]
	result := make([]model.Message, len(history))
	copy(result, history)
	return result
}

// Count returns the number of messages stored for roomID.
func (m *MessageStore) Count(roomID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[roomID])
}
