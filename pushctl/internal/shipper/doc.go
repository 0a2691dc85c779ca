// Package shipper sends push events to the presencehub server over the
// presencehub.v1.PushService gRPC API.
//
// Shipper.Ship() is non-blocking: events are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is
// evicted so the latest events are preserved.
//
// Shipper.Run() drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→30s, ±25% jitter) on connection or send errors.
// Permanent errors (Unauthenticated, PermissionDenied, InvalidArgument, or a
// payload that cannot be encoded) discard the event rather than retrying.
// Flush() waits for everything shipped so far to be settled.
//
// Auth: API key via gRPC metadata header. TLS when a CA bundle is given,
// plaintext otherwise. The dialFn field is injectable for testing.
package shipper
