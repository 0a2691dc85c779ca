// Package hub is the presence-and-broadcast core of the server.
//
// A Hub owns every piece of shared state: the connection registry, the room
// table and the user -> connection index. All of it is mutated only by the
// goroutine running Hub.Run, which consumes a single FIFO channel of events:
//
//	transport open   -> Open      (register, send "welcome")
//	inbound frame    -> Receive   (decode, dispatch, broadcast)
//	transport close  -> Disconnect (leave rooms, evict index, unregister)
//	push API calls   -> BroadcastNewStory, BroadcastNewComment, NotifyUser,
//	                    Stats, RoomMembers
//
// Each event runs to completion before the next one is dequeued, so nothing
// in this package takes a lock. Frames from one connection are handled in
// arrival order because the transport enqueues them from a single read loop.
//
// Delivery is best-effort. A Sender whose outbound buffer is full drops the
// frame; the hub then closes it and the transport reports the close back as
// a normal Disconnect.
package hub
