// Package metrics exposes hub state and frame outcomes to Prometheus.
//
// Gauges (computed from Hub.Stats at scrape time):
//
//	presencehub_connections
//	presencehub_authenticated_users
//	presencehub_active_rooms
//	presencehub_room_members{room}        busiest MaxRoomSeries rooms, rest as room="_other"
//
// Counters (fed by the dispatcher through hub.Observer):
//
//	presencehub_frames_total{type}
//	presencehub_frame_errors_total{kind}   kind = protocol | auth | internal
//
// Everything lives in a private registry served by Metrics.Handler.
package metrics
