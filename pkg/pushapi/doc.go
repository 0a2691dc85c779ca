// Package pushapi defines the presencehub.v1.PushService gRPC contract shared
// by the server and its clients.
//
// The service is declared by hand in the shape protoc-gen-go-grpc would
// produce, using well-known types as payloads so no generated code is
// needed:
//
//	BroadcastNewStory(Struct story)                     -> Empty
//	BroadcastNewComment(Struct{comment, story})         -> Empty
//	NotifyUser(Struct{user_id, message})                -> BoolValue
//	GetConnectionStats(Empty)                           -> Struct snapshot
//
// Client adapts a connection to the Pusher interface, which *hub.Hub also
// satisfies. Event is the JSON envelope used on the AMQP queue and by
// pushctl ship; Event.Apply runs it against any Pusher.
//
// Struct numbers are float64, so integer ids above 2^53 do not round-trip.
package pushapi
