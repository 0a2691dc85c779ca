// Package receiver implements pushapi.PushServiceServer, the gRPC endpoint
// collaborators use to push stories, comments and user notifications into
// the hub.
//
// Request Structs are converted back to JSON and handed to the hub's push
// API. Structural problems (missing comment/story, bad user_id, story
// without an id) are codes.InvalidArgument; a hub that is shutting down is
// codes.Unavailable. Authentication is enforced upstream by the gRPC server
// interceptor (see package auth).
//
// New(h) wires the receiver to the given hub.
package receiver
