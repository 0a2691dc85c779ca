package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Inbound frame types.
const (
	TypeAuth          = "auth"
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypeStoryView     = "story_view"
	TypeCommentTyping = "comment_typing"
	TypePing          = "ping"
)

// Frame is one decoded client frame. The set of implementations is closed:
// authFrame, joinRoomFrame, leaveRoomFrame, storyViewFrame,
// commentTypingFrame and pingFrame.
type Frame interface {
	frameType() string
}

type authFrame struct{ token string }
type joinRoomFrame struct{ room string }
type leaveRoomFrame struct{ room string }
type storyViewFrame struct{ story StoryID }
type commentTypingFrame struct {
	story  StoryID
	typing bool
}
type pingFrame struct{}

func (authFrame) frameType() string          { return TypeAuth }
func (joinRoomFrame) frameType() string      { return TypeJoinRoom }
func (leaveRoomFrame) frameType() string     { return TypeLeaveRoom }
func (storyViewFrame) frameType() string     { return TypeStoryView }
func (commentTypingFrame) frameType() string { return TypeCommentTyping }
func (pingFrame) frameType() string          { return TypePing }

// wireFrame is the union of every field a client frame may carry.
type wireFrame struct {
	Type    *string         `json:"type"`
	Token   string          `json:"token"`
	Room    string          `json:"room"`
	StoryID json.RawMessage `json:"story_id"`
	Typing  bool            `json:"typing"`
}

// decodeFrame parses one client frame. All failures are *ProtocolError.
func decodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, protocolErr("Invalid message format")
	}
	if w.Type == nil || *w.Type == "" {
		return nil, protocolErr("Message type is required")
	}

	switch *w.Type {
	case TypeAuth:
		return authFrame{token: w.Token}, nil
	case TypeJoinRoom:
		if w.Room == "" {
			return nil, protocolErr("room is required")
		}
		return joinRoomFrame{room: w.Room}, nil
	case TypeLeaveRoom:
		if w.Room == "" {
			return nil, protocolErr("room is required")
		}
		return leaveRoomFrame{room: w.Room}, nil
	case TypeStoryView:
		id, err := ParseStoryID(w.StoryID)
		if err != nil {
			return nil, err
		}
		return storyViewFrame{story: id}, nil
	case TypeCommentTyping:
		id, err := ParseStoryID(w.StoryID)
		if err != nil {
			return nil, err
		}
		return commentTypingFrame{story: id, typing: w.Typing}, nil
	case TypePing:
		return pingFrame{}, nil
	default:
		return nil, protocolErr(fmt.Sprintf("Unknown message type: %s", *w.Type))
	}
}

// StoryID is a story identifier as the client sent it: a JSON number or a
// non-empty string. It marshals back to exactly the same JSON.
type StoryID struct {
	raw json.RawMessage
	key string
}

// ParseStoryID validates raw as a story id.
func ParseStoryID(raw json.RawMessage) (StoryID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return StoryID{}, protocolErr("story_id is required")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return StoryID{}, protocolErr("story_id is required")
		}
		return StoryID{raw: append(json.RawMessage(nil), raw...), key: s}, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return StoryID{}, protocolErr("story_id must be a number or string")
	}
	key, err := numericKey(n)
	if err != nil {
		return StoryID{}, protocolErr("story_id must be a number or string")
	}
	return StoryID{raw: append(json.RawMessage(nil), raw...), key: key}, nil
}

// maxExactFloat is the largest integer a float64 holds exactly (2^53).
const maxExactFloat = 1 << 53

// numericKey canonicalises a JSON number so 42, 42.0 and 4.2e1 name the
// same room.
func numericKey(n json.Number) (string, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return "", err
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxExactFloat {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// String returns the id without JSON quoting.
func (s StoryID) String() string { return s.key }

// Room returns the room that tracks viewers of the story.
func (s StoryID) Room() string { return StoryRoom(s.key) }

// MarshalJSON implements json.Marshaler.
func (s StoryID) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// StoryRoom names the room for a story id, e.g. "story_42".
func StoryRoom(id string) string { return "story_" + id }
