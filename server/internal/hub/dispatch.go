package hub

import (
	"fmt"
	"sort"
)

// dispatch decodes one frame from connection id and runs the matching
// operation. Every failure is answered with an error frame to the sender.
func (h *Hub) dispatch(id ConnID, data []byte) {
	c, ok := h.conns.get(id)
	if !ok {
		// Closed before this frame was dequeued.
		return
	}

	f, err := decodeFrame(data)
	if err != nil {
		h.reject(c, "", err)
		return
	}

	switch f := f.(type) {
	case authFrame:
		err = h.authenticate(c, f.token)
	case joinRoomFrame:
		err = h.joinRoom(c, f.room)
	case leaveRoomFrame:
		h.leaveRoom(c, f.room)
	case storyViewFrame:
		err = h.storyView(c, f)
	case commentTypingFrame:
		err = h.commentTyping(c, f)
	case pingFrame:
		h.sendTo(c.id, h.header(TypePong))
	default:
		err = protocolErr(fmt.Sprintf("Unsupported message type: %s", f.frameType()))
	}

	if err != nil {
		h.reject(c, f.frameType(), err)
		return
	}
	h.observer.FrameHandled(f.frameType())
}

func (h *Hub) reject(c *connection, frameType string, err error) {
	kind := errorKind(err)
	h.observer.FrameRejected(kind)
	h.logger.Debug("frame rejected", "conn", c.id, "type", frameType, "kind", kind, "err", err)
	h.sendTo(c.id, errorFrame{header: h.header(TypeError), Message: clientMessage(err)})
}

func (h *Hub) joinRoom(c *connection, room string) error {
	if !c.authenticated() {
		return protocolErr(authRequiredText)
	}
	h.join(c, room)

	users, _ := h.rooms.members(room)
	sortUsers(users)
	h.sendTo(c.id, roomJoinedFrame{header: h.header(TypeRoomJoined), Room: room, Users: users})
	h.broadcastRoom(room, presenceFrame{header: h.header(TypeUserJoined), Room: room, User: *c.identity}, c.id)
	return nil
}

func (h *Hub) leaveRoom(c *connection, room string) {
	user, wasMember := h.leave(c, room)
	h.sendTo(c.id, roomLeftFrame{header: h.header(TypeRoomLeft), Room: room})
	if wasMember {
		h.broadcastRoom(room, presenceFrame{header: h.header(TypeUserLeft), Room: room, User: user}, c.id)
	}
}

func (h *Hub) storyView(c *connection, f storyViewFrame) error {
	if !c.authenticated() {
		return protocolErr(authRequiredText)
	}
	room := f.story.Room()
	h.join(c, room)
	h.broadcastRoom(room, storyViewOut{header: h.header(TypeStoryView), StoryID: f.story, User: *c.identity}, c.id)
	return nil
}

func (h *Hub) commentTyping(c *connection, f commentTypingFrame) error {
	if !c.authenticated() {
		return protocolErr(authRequiredText)
	}
	h.broadcastRoom(f.story.Room(), commentTypingOut{
		header:  h.header(TypeCommentTyping),
		StoryID: f.story,
		User:    *c.identity,
		Typing:  f.typing,
	}, c.id)
	return nil
}

// join adds c to room with its current identity snapshot.
func (h *Hub) join(c *connection, room string) {
	h.rooms.join(c.id, room, *c.identity, h.now())
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *connection, room string) (UserIdentity, bool) {
	delete(c.rooms, room)
	return h.rooms.leave(c.id, room)
}

// disconnect runs the close cleanup: presence to remaining members, every
// room left, user index evicted if current, registry record removed.
func (h *Hub) disconnect(id ConnID, cause error) {
	c, ok := h.conns.get(id)
	if !ok {
		return
	}
	if cause != nil {
		h.logger.Warn("connection transport error", "conn", id, "err", cause)
	}

	left := h.rooms.leaveAll(id, c.rooms)
	clear(c.rooms)
	if c.identity != nil {
		for _, room := range left {
			h.broadcastRoom(room, presenceFrame{header: h.header(TypeUserLeft), Room: room, User: *c.identity}, id)
		}
		h.users.evict(c.identity.ID, id)
	}
	h.conns.close(id)

	h.logger.Debug("connection closed", "conn", id, "rooms_left", len(left), "connections", h.conns.len())
}

func sortUsers(users []UserIdentity) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}
