package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/storyhub/presencehub/server/internal/hub"
)

// maxBodyBytes caps push request bodies.
const maxBodyBytes = 1 << 20

// Hub is the push API and stats surface the handler drives.
type Hub interface {
	BroadcastNewStory(ctx context.Context, story json.RawMessage) error
	BroadcastNewComment(ctx context.Context, comment, story json.RawMessage) error
	NotifyUser(ctx context.Context, userID int64, message json.RawMessage) (bool, error)
	Stats(ctx context.Context) (hub.Snapshot, error)
	RoomMembers(ctx context.Context, roomID string) ([]hub.UserIdentity, bool, error)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	hub    Hub
	router *mux.Router
}

// New registers every route. guard wraps all routes except health; metrics,
// when non-nil, is mounted unguarded at /metrics.
func New(h Hub, guard func(http.Handler) http.Handler, metrics http.Handler) http.Handler {
	api := &Handler{hub: h, router: mux.NewRouter()}
	r := api.router

	r.HandleFunc("/api/v1/health", api.health).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	// Guarded routes sit on the root router rather than a /api/v1 prefix
	// subrouter, which would shadow health's 405 with a 404.
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	v1 := func(path string, fn http.HandlerFunc, method string) {
		r.Handle("/api/v1"+path, guard(fn)).Methods(method)
	}
	v1("/stats", api.stats, http.MethodGet)
	v1("/rooms/{id}/members", api.roomMembers, http.MethodGet)
	v1("/stories", api.newStory, http.MethodPost)
	v1("/comments", api.newComment, http.MethodPost)
	v1("/users/{id}/notify", api.notifyUser, http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(api)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// stats returns GET /api/v1/stats, the hub snapshot.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.hub.Stats(r.Context())
	if err != nil {
		hubErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

// roomMembers returns GET /api/v1/rooms/{id}/members; 404 if the room does
// not exist.
func (h *Handler) roomMembers(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	users, ok, err := h.hub.RoomMembers(r.Context(), room)
	if err != nil {
		hubErr(w, err)
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "room not found")
		return
	}
	jsonResp(w, http.StatusOK, RoomMembersResponse{Room: room, Users: users})
}

// newStory handles POST /api/v1/stories; the body is the story object.
func (h *Handler) newStory(w http.ResponseWriter, r *http.Request) {
	story, ok := readJSON(w, r)
	if !ok {
		return
	}
	if err := h.hub.BroadcastNewStory(r.Context(), story); err != nil {
		hubErr(w, err)
		return
	}
	jsonResp(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

// newComment handles POST /api/v1/comments with {"comment":..., "story":...}.
func (h *Handler) newComment(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	var req CommentRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Comment) == 0 || len(req.Story) == 0 {
		jsonErr(w, http.StatusBadRequest, "comment and story are required")
		return
	}
	if err := h.hub.BroadcastNewComment(r.Context(), req.Comment, req.Story); err != nil {
		hubErr(w, err)
		return
	}
	jsonResp(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

// notifyUser handles POST /api/v1/users/{id}/notify; the body is delivered
// to the user's current connection unchanged.
func (h *Handler) notifyUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || userID <= 0 {
		jsonErr(w, http.StatusBadRequest, "invalid user id")
		return
	}
	msg, ok := readJSON(w, r)
	if !ok {
		return
	}
	delivered, err := h.hub.NotifyUser(r.Context(), userID, msg)
	if err != nil {
		hubErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, NotifyResponse{Delivered: delivered})
}

// --- helpers ----------------------------------------------------------------

// readJSON reads a bounded request body and checks it is valid JSON. On
// failure it writes the error response and returns false.
func readJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonErr(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	if !json.Valid(data) {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return data, true
}

// hubErr maps push API errors onto HTTP status codes.
func hubErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hub.ErrInvalidPayload):
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, hub.ErrClosed):
		jsonErr(w, http.StatusServiceUnavailable, "hub is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		jsonErr(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		slog.Error("api: hub call failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// recoveryLogger routes panics caught by handlers.RecoveryHandler to slog.
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	slog.Error("api: handler panic", "panic", v)
}
