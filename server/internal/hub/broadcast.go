package hub

import "encoding/json"

// noConn excludes nobody from a room broadcast; ids start at 1.
const noConn ConnID = 0

// sendTo delivers frame to one live connection. No-op if it is gone.
func (h *Hub) sendTo(id ConnID, frame any) bool {
	c, ok := h.conns.get(id)
	if !ok {
		return false
	}
	data, ok := h.encode(frame)
	if !ok {
		return false
	}
	return h.deliver(c, data)
}

// broadcastRoom delivers frame to every member of roomID except exclude.
// It returns the number of connections the frame was queued for.
func (h *Hub) broadcastRoom(roomID string, frame any, exclude ConnID) int {
	r, ok := h.rooms.get(roomID)
	if !ok {
		return 0
	}
	data, ok := h.encode(frame)
	if !ok {
		return 0
	}
	n := 0
	for id := range r.members {
		if id == exclude {
			continue
		}
		if c, ok := h.conns.get(id); ok && h.deliver(c, data) {
			n++
		}
	}
	return n
}

// broadcastAll delivers frame to every open connection.
func (h *Hub) broadcastAll(frame any) int {
	data, ok := h.encode(frame)
	if !ok {
		return 0
	}
	n := 0
	for _, c := range h.conns.conns {
		if h.deliver(c, data) {
			n++
		}
	}
	return n
}

// notifyUser delivers data verbatim to the current connection of userID.
func (h *Hub) notifyUser(userID int64, data []byte) bool {
	id, ok := h.users.lookup(userID)
	if !ok {
		return false
	}
	c, ok := h.conns.get(id)
	if !ok {
		return false
	}
	return h.deliver(c, data)
}

// deliver queues data on c. A Sender that cannot take the frame is closed;
// its transport reports the close back through Disconnect.
func (h *Hub) deliver(c *connection, data []byte) bool {
	if err := c.sender.Send(data); err != nil {
		h.logger.Warn("dropping frame for slow connection", "conn", c.id, "err", err)
		c.sender.Close() //nolint:errcheck
		return false
	}
	return true
}

func (h *Hub) encode(frame any) ([]byte, bool) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encode frame", "err", err)
		return nil, false
	}
	return data, true
}
