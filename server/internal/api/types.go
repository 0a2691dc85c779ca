package api

import (
	"encoding/json"

	"github.com/storyhub/presencehub/server/internal/hub"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RoomMembersResponse is the payload for GET /api/v1/rooms/{id}/members.
type RoomMembersResponse struct {
	Room  string             `json:"room"`
	Users []hub.UserIdentity `json:"users"`
}

// CommentRequest is the body of POST /api/v1/comments.
type CommentRequest struct {
	Comment json.RawMessage `json:"comment"`
	Story   json.RawMessage `json:"story"`
}

// AcceptedResponse acknowledges a queued broadcast.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// NotifyResponse is the payload for POST /api/v1/users/{id}/notify.
type NotifyResponse struct {
	Delivered bool `json:"delivered"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
