package hub

import (
	"sort"
	"time"
)

// Snapshot is a point-in-time view of hub state for operational use.
type Snapshot struct {
	TotalConnections   int         `json:"totalConnections"`
	AuthenticatedUsers int         `json:"authenticatedUsers"`
	ActiveRooms        int         `json:"activeRooms"`
	PerRoom            []RoomStats `json:"perRoom"`
}

// RoomStats describes one active room.
type RoomStats struct {
	ID          string    `json:"id"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// snapshot reads registry and room state; rooms are sorted by id.
func (h *Hub) snapshot() Snapshot {
	s := Snapshot{
		TotalConnections:   h.conns.len(),
		AuthenticatedUsers: h.users.len(),
		ActiveRooms:        h.rooms.len(),
		PerRoom:            make([]RoomStats, 0, h.rooms.len()),
	}
	for _, r := range h.rooms.rooms {
		s.PerRoom = append(s.PerRoom, RoomStats{
			ID:          r.ID,
			MemberCount: len(r.members),
			CreatedAt:   r.CreatedAt.UTC(),
		})
	}
	sort.Slice(s.PerRoom, func(i, j int) bool { return s.PerRoom[i].ID < s.PerRoom[j].ID })
	return s
}
