package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/storyhub/presencehub/pkg/pushapi"
	"github.com/storyhub/presencehub/server/internal/hub"
)

// Hub is the push API the receiver forwards to.
type Hub interface {
	BroadcastNewStory(ctx context.Context, story json.RawMessage) error
	BroadcastNewComment(ctx context.Context, comment, story json.RawMessage) error
	NotifyUser(ctx context.Context, userID int64, message json.RawMessage) (bool, error)
	Stats(ctx context.Context) (hub.Snapshot, error)
}

// Receiver implements pushapi.PushServiceServer on top of a Hub.
type Receiver struct {
	pushapi.UnimplementedPushServiceServer
	hub Hub
}

// New creates a Receiver that forwards push calls to h.
func New(h Hub) *Receiver {
	return &Receiver{hub: h}
}

// BroadcastNewStory sends the request Struct as the story of a new_story
// frame to every connection.
func (r *Receiver) BroadcastNewStory(ctx context.Context, story *structpb.Struct) (*emptypb.Empty, error) {
	raw, err := pushapi.StructToJSON(story)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := r.hub.BroadcastNewStory(ctx, raw); err != nil {
		return nil, toStatus(err)
	}
	slog.Debug("receiver: new story broadcast")
	return &emptypb.Empty{}, nil
}

// BroadcastNewComment expects {comment, story}; story.id selects the room.
func (r *Receiver) BroadcastNewComment(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	comment, err := pushapi.FieldJSON(req, pushapi.FieldComment)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	story, err := pushapi.FieldJSON(req, pushapi.FieldStory)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := r.hub.BroadcastNewComment(ctx, comment, story); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// NotifyUser expects {user_id, message} and reports whether the message was
// queued for the user's current connection.
func (r *Receiver) NotifyUser(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	userID, err := pushapi.UserID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	msg, err := pushapi.FieldJSON(req, pushapi.FieldMessage)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	delivered, err := r.hub.NotifyUser(ctx, userID, msg)
	if err != nil {
		return nil, toStatus(err)
	}
	slog.Debug("receiver: notify user", "user", userID, "delivered", delivered)
	return wrapperspb.Bool(delivered), nil
}

// GetConnectionStats returns the hub snapshot as a Struct.
func (r *Receiver) GetConnectionStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, err := r.hub.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := pushapi.StructFromJSON(raw)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, hub.ErrInvalidPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, hub.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.FromContextError(err).Err()
	}
}
