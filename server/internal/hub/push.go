package hub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Push API. Every method enqueues onto the loop and waits for the result, so
// callers on any goroutine see state as of the moment their call ran.
// ctx only bounds the wait for queue space: an error means the call never ran,
// and a call that was queued is always reported as applied.

// BroadcastNewStory sends a new_story frame carrying story to every open
// connection, authenticated or not.
func (h *Hub) BroadcastNewStory(ctx context.Context, story json.RawMessage) error {
	if !json.Valid(story) {
		return fmt.Errorf("hub: new story: %w", ErrInvalidPayload)
	}
	var sent int
	err := h.call(ctx, func() {
		sent = h.broadcastAll(newStoryFrame{header: h.header(TypeNewStory), Story: story})
	})
	if err != nil {
		return err
	}
	h.logger.Debug("new story broadcast", "recipients", sent)
	return nil
}

// BroadcastNewComment sends a new_comment frame to the members of
// story_{story.id}. A room with no members is a no-op.
func (h *Hub) BroadcastNewComment(ctx context.Context, comment, story json.RawMessage) error {
	if !json.Valid(comment) || !json.Valid(story) {
		return fmt.Errorf("hub: new comment: %w", ErrInvalidPayload)
	}
	var ref struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(story, &ref); err != nil {
		return fmt.Errorf("hub: new comment: story must be an object: %w", ErrInvalidPayload)
	}
	id, err := ParseStoryID(ref.ID)
	if err != nil {
		return fmt.Errorf("hub: new comment: %v: %w", err, ErrInvalidPayload)
	}

	var sent int
	err = h.call(ctx, func() {
		sent = h.broadcastRoom(id.Room(), newCommentFrame{
			header:  h.header(TypeNewComment),
			Comment: comment,
			Story:   story,
		}, noConn)
	})
	if err != nil {
		return err
	}
	h.logger.Debug("new comment broadcast", "room", id.Room(), "recipients", sent)
	return nil
}

// NotifyUser delivers message, unchanged, to the connection currently bound
// to userID. It reports false when the user has no current connection or
// the frame could not be queued.
func (h *Hub) NotifyUser(ctx context.Context, userID int64, message json.RawMessage) (bool, error) {
	if !json.Valid(message) {
		return false, fmt.Errorf("hub: notify user: %w", ErrInvalidPayload)
	}
	var delivered bool
	if err := h.call(ctx, func() { delivered = h.notifyUser(userID, message) }); err != nil {
		return false, err
	}
	return delivered, nil
}

// Stats returns a snapshot of connection and room state.
func (h *Hub) Stats(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	if err := h.call(ctx, func() { s = h.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// RoomMembers lists the identity snapshots in roomID, sorted by user id.
// ok is false when the room does not exist.
func (h *Hub) RoomMembers(ctx context.Context, roomID string) ([]UserIdentity, bool, error) {
	var (
		users []UserIdentity
		found bool
	)
	if err := h.call(ctx, func() { users, found = h.rooms.members(roomID) }); err != nil {
		return nil, false, err
	}
	sortUsers(users)
	return users, found, nil
}
