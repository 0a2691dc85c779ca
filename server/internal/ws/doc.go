// Package ws is the WebSocket transport for the presence hub.
//
// Server.ServeHTTP upgrades a request, registers the connection with the hub
// (which answers with a "welcome" frame) and then runs two pumps:
//
//   - readPump forwards every data frame (text or binary) to Hub.Receive in
//     arrival order and reports the end of the connection with
//     Hub.Disconnect.
//   - writePump drains the per-client send queue, writes pings every
//     9/10 of the pong wait, and closes the socket when the client is closed.
//
// client implements hub.Sender. Send never blocks: a full queue returns an
// error and the hub closes the client, which tears the socket down and
// results in a normal Disconnect.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at ws.path (default /ws).
package ws
