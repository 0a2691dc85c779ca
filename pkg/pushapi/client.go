package pushapi

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client is a Pusher backed by a PushService connection.
type Client struct {
	rpc    PushServiceClient
	header string
	key    string
}

// NewClient wraps cc. When key is non-empty it is sent in header on every
// call.
func NewClient(cc grpc.ClientConnInterface, header, key string) *Client {
	if header == "" {
		header = "x-api-key"
	}
	return &Client{rpc: NewPushServiceClient(cc), header: header, key: key}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.key == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, c.header, c.key)
}

// BroadcastNewStory implements Pusher.
func (c *Client) BroadcastNewStory(ctx context.Context, story json.RawMessage) error {
	s, err := StructFromJSON(story)
	if err != nil {
		return err
	}
	_, err = c.rpc.BroadcastNewStory(c.outgoing(ctx), s)
	return err
}

// BroadcastNewComment implements Pusher.
func (c *Client) BroadcastNewComment(ctx context.Context, comment, story json.RawMessage) error {
	req, err := CommentRequest(comment, story)
	if err != nil {
		return err
	}
	_, err = c.rpc.BroadcastNewComment(c.outgoing(ctx), req)
	return err
}

// NotifyUser implements Pusher.
func (c *Client) NotifyUser(ctx context.Context, userID int64, message json.RawMessage) (bool, error) {
	req, err := NotifyRequest(userID, message)
	if err != nil {
		return false, err
	}
	resp, err := c.rpc.NotifyUser(c.outgoing(ctx), req)
	if err != nil {
		return false, err
	}
	return resp.GetValue(), nil
}

// Stats returns the server's connection snapshot as JSON.
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	out, err := c.rpc.GetConnectionStats(c.outgoing(ctx), &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	return StructToJSON(out)
}
