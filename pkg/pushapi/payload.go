package pushapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Request field names.
const (
	FieldComment = "comment"
	FieldStory   = "story"
	FieldUserID  = "user_id"
	FieldMessage = "message"
)

// ErrMissingField is returned when a request Struct lacks a required field.
var ErrMissingField = errors.New("pushapi: missing field")

// StructFromJSON converts a JSON object into a Struct.
func StructFromJSON(raw json.RawMessage) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("pushapi: decode object: %w", err)
	}
	return s, nil
}

// StructToJSON converts s back into a JSON object.
func StructToJSON(s *structpb.Struct) (json.RawMessage, error) {
	if s == nil {
		return json.RawMessage("{}"), nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("pushapi: encode object: %w", err)
	}
	return data, nil
}

// FieldJSON returns the JSON encoding of field name in s.
func FieldJSON(s *structpb.Struct, name string) (json.RawMessage, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	data, err := protojson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pushapi: encode %s: %w", name, err)
	}
	return data, nil
}

// CommentRequest builds the BroadcastNewComment request.
func CommentRequest(comment, story json.RawMessage) (*structpb.Struct, error) {
	c, err := StructFromJSON(comment)
	if err != nil {
		return nil, err
	}
	s, err := StructFromJSON(story)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldComment: structpb.NewStructValue(c),
		FieldStory:   structpb.NewStructValue(s),
	}}, nil
}

// NotifyRequest builds the NotifyUser request.
func NotifyRequest(userID int64, message json.RawMessage) (*structpb.Struct, error) {
	m, err := StructFromJSON(message)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldUserID:  structpb.NewNumberValue(float64(userID)),
		FieldMessage: structpb.NewStructValue(m),
	}}, nil
}

// UserID extracts a positive integer user_id from a NotifyUser request.
func UserID(s *structpb.Struct) (int64, error) {
	v, ok := s.GetFields()[FieldUserID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, FieldUserID)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("pushapi: %s must be a number", FieldUserID)
	}
	id := int64(n.NumberValue)
	if float64(id) != n.NumberValue || id <= 0 {
		return 0, fmt.Errorf("pushapi: %s must be a positive integer", FieldUserID)
	}
	return id, nil
}
