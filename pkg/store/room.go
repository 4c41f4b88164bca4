package store

import (
	"sort"
	"sync"

	"github.com/fanlv/chat-room/pkg/model"
)

// RoomStore maps a room id to its members, keyed by remote address. It holds
// independent copies of the session records, not shared references; the
// session store stays authoritative and the two are kept consistent by
// paired save/remove calls. A room is created implicitly on first member and
// an emptied room persists as an empty map, which is harmless: behavior is
// gated on room id, never on room existence.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[int64]map[string]model.UserSession
}

// NewRoomStore creates an empty room store.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[int64]map[string]model.UserSession),
	}
}

// Save adds sess to roomID's membership, keyed by address. A re-login under
// the same address overwrites the previous entry.
func (r *RoomStore) Save(roomID int64, sess model.UserSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]model.UserSession)
		r.rooms[roomID] = members
	}
	members[sess.Address] = sess
}

// Members returns a snapshot of roomID's membership sorted ascending by login
// time (join order), with name as the tie-break.
func (r *RoomStore) Members(roomID int64) []model.UserSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	result := make([]model.UserSession, 0, len(members))
	for _, sess := range members {
		result = append(result, sess)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LoginTime == result[j].LoginTime {
			return result[i].Name < result[j].Name
		}
		return result[i].LoginTime < result[j].LoginTime
	})
	return result
}

// HasName reports whether any member of roomID has the given user name.
func (r *RoomStore) HasName(roomID int64, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.rooms[roomID] {
		if sess.Name == name {
			return true
		}
	}
	return false
}

// Remove deletes the member at addr from roomID. It reports whether an entry
// was actually removed.
func (r *RoomStore) Remove(roomID int64, addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[addr]; !ok {
		return false
	}
	delete(members, addr)
	return true
}

// MemberCount returns the number of members in roomID.
func (r *RoomStore) MemberCount(roomID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// RoomIDs returns the ids of every room seen so far, sorted ascending.
func (r *RoomStore) RoomIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
