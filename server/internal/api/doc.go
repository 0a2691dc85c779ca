// Package api implements the HTTP REST surface of the presence hub.
//
// New(hub, guard, metrics) returns an http.Handler that serves:
//
//	GET  /api/v1/health              : {"status":"ok"}, never guarded
//	GET  /api/v1/stats               : connection and room snapshot
//	GET  /api/v1/rooms/{id}/members  : identities in a room; 404 if unknown
//	POST /api/v1/stories             : broadcast new_story to every connection (202)
//	POST /api/v1/comments            : broadcast new_comment to story_{story.id} (202)
//	POST /api/v1/users/{id}/notify   : deliver the body to the user's connection
//	GET  /metrics                    : Prometheus exposition, when provided
//
// Routing uses gorilla/mux; guard (usually auth.APIKeyMiddleware) wraps the
// /api/v1 subrouter. All responses are JSON; errors are {"error": "..."}.
package api
