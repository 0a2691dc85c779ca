package pushapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types carried by an Event envelope.
const (
	EventNewStory   = "new_story"
	EventNewComment = "new_comment"
	EventNotifyUser = "notify_user"
)

// ErrInvalidEvent is returned for envelopes that can never be applied.
var ErrInvalidEvent = errors.New("pushapi: invalid event")

// Event is the transport-neutral push envelope used on the AMQP queue and by
// pushctl ship.
type Event struct {
	Type    string          `json:"type"`
	Story   json.RawMessage `json:"story,omitempty"`
	Comment json.RawMessage `json:"comment,omitempty"`
	UserID  int64           `json:"user_id,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Pusher is the push API. *hub.Hub and *Client implement it.
type Pusher interface {
	BroadcastNewStory(ctx context.Context, story json.RawMessage) error
	BroadcastNewComment(ctx context.Context, comment, story json.RawMessage) error
	NotifyUser(ctx context.Context, userID int64, message json.RawMessage) (bool, error)
}

// DecodeEvent parses and validates one envelope.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks that the fields required by Type are present.
func (e Event) Validate() error {
	switch e.Type {
	case EventNewStory:
		if len(e.Story) == 0 {
			return fmt.Errorf("%w: new_story requires story", ErrInvalidEvent)
		}
	case EventNewComment:
		if len(e.Comment) == 0 || len(e.Story) == 0 {
			return fmt.Errorf("%w: new_comment requires comment and story", ErrInvalidEvent)
		}
	case EventNotifyUser:
		if e.UserID <= 0 || len(e.Message) == 0 {
			return fmt.Errorf("%w: notify_user requires user_id and message", ErrInvalidEvent)
		}
	case "":
		return fmt.Errorf("%w: type is required", ErrInvalidEvent)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// Apply performs the event against p. delivered is only meaningful for
// notify_user.
func (e Event) Apply(ctx context.Context, p Pusher) (delivered bool, err error) {
	switch e.Type {
	case EventNewStory:
		return false, p.BroadcastNewStory(ctx, e.Story)
	case EventNewComment:
		return false, p.BroadcastNewComment(ctx, e.Comment, e.Story)
	case EventNotifyUser:
		return p.NotifyUser(ctx, e.UserID, e.Message)
	default:
		return false, e.Validate()
	}
}
