package hub

import (
	"encoding/json"
	"time"
)

// Server-originated frame types.
const (
	TypeWelcome     = "welcome"
	TypeError       = "error"
	TypeAuthSuccess = "auth_success"
	TypeRoomJoined  = "room_joined"
	TypeRoomLeft    = "room_left"
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
	TypePong        = "pong"
	TypeNewStory    = "new_story"
	TypeNewComment  = "new_comment"
)

const (
	welcomeText      = "Connected to real-time server"
	authRequiredText = "Authentication required"

	// timestampLayout is ISO 8601 with millisecond precision.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// header is embedded in every server frame.
type header struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func (h *Hub) header(typ string) header {
	return header{Type: typ, Timestamp: stamp(h.now())}
}

type welcomeFrame struct {
	header
	Message      string `json:"message"`
	ConnectionID ConnID `json:"connectionId"`
}

type errorFrame struct {
	header
	Message string `json:"message"`
}

type authSuccessFrame struct {
	header
	User UserIdentity `json:"user"`
}

type roomJoinedFrame struct {
	header
	Room  string         `json:"room"`
	Users []UserIdentity `json:"users"`
}

type roomLeftFrame struct {
	header
	Room string `json:"room"`
}

type presenceFrame struct {
	header
	Room string       `json:"room"`
	User UserIdentity `json:"user"`
}

type storyViewOut struct {
	header
	StoryID StoryID      `json:"story_id"`
	User    UserIdentity `json:"user"`
}

type commentTypingOut struct {
	header
	StoryID StoryID      `json:"story_id"`
	User    UserIdentity `json:"user"`
	Typing  bool         `json:"typing"`
}

type newStoryFrame struct {
	header
	Story json.RawMessage `json:"story"`
}

type newCommentFrame struct {
	header
	Comment json.RawMessage `json:"comment"`
	Story   json.RawMessage `json:"story"`
}

// stamp formats t the way frame timestamps are written.
func stamp(t time.Time) string { return t.UTC().Format(timestampLayout) }
