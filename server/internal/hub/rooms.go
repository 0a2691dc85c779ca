package hub

import (
	"sort"
	"time"
)

// Room is a topic-scoped set of member connections, e.g. "story_42".
type Room struct {
	ID        string
	CreatedAt time.Time

	// members holds the identity snapshot taken when each connection joined.
	members map[ConnID]UserIdentity
}

// roomManager maps room ids to member sets. It trusts its caller: the
// dispatcher checks authentication before calling join. Loop-owned.
type roomManager struct {
	rooms map[string]*Room
}

func newRoomManager() *roomManager {
	return &roomManager{rooms: make(map[string]*Room)}
}

// join creates the room if needed and inserts or replaces the member entry.
func (m *roomManager) join(id ConnID, roomID string, user UserIdentity, now time.Time) *Room {
	r, ok := m.rooms[roomID]
	if !ok {
		r = &Room{ID: roomID, CreatedAt: now, members: make(map[ConnID]UserIdentity)}
		m.rooms[roomID] = r
	}
	r.members[id] = user
	return r
}

// leave removes the member entry and deletes the room once it is empty.
// It returns the snapshot that was removed, if any.
func (m *roomManager) leave(id ConnID, roomID string) (UserIdentity, bool) {
	r, ok := m.rooms[roomID]
	if !ok {
		return UserIdentity{}, false
	}
	user, ok := r.members[id]
	if !ok {
		return UserIdentity{}, false
	}
	delete(r.members, id)
	if len(r.members) == 0 {
		delete(m.rooms, roomID)
	}
	return user, true
}

// leaveAll removes id from each of rooms and returns, sorted, the ones it
// was actually removed from.
func (m *roomManager) leaveAll(id ConnID, rooms map[string]struct{}) []string {
	left := make([]string, 0, len(rooms))
	for roomID := range rooms {
		if _, ok := m.leave(id, roomID); ok {
			left = append(left, roomID)
		}
	}
	sort.Strings(left)
	return left
}

// members returns the identity snapshots of everyone in roomID.
func (m *roomManager) members(roomID string) ([]UserIdentity, bool) {
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	out := make([]UserIdentity, 0, len(r.members))
	for _, u := range r.members {
		out = append(out, u)
	}
	return out, true
}

func (m *roomManager) get(roomID string) (*Room, bool) {
	r, ok := m.rooms[roomID]
	return r, ok
}

func (m *roomManager) len() int { return len(m.rooms) }
