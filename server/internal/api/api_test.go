package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/storyhub/presencehub/server/internal/api"
	"github.com/storyhub/presencehub/server/internal/auth"
	"github.com/storyhub/presencehub/server/internal/hub"
)

// --- test helpers -----------------------------------------------------------

type staticValidator map[string]auth.Claims

func (v staticValidator) Validate(token string) (*auth.Claims, error) {
	c, ok := v[token]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	return &c, nil
}

type recorder struct {
	mu     sync.Mutex
	frames []string
}

func (r *recorder) Send(data []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, string(data))
	r.mu.Unlock()
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

type fixture struct {
	hub     *hub.Hub
	handler http.Handler
}

func newFixture(t *testing.T, guard func(http.Handler) http.Handler) *fixture {
	t.Helper()
	h := hub.New(staticValidator{
		"alice": {UserID: 7, Username: "alice"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# metrics\n")) //nolint:errcheck
	})
	return &fixture{hub: h, handler: api.New(h, guard, metrics)}
}

// connect opens a hub connection, optionally authenticates and joins room.
func (f *fixture) connect(t *testing.T, token, room string) *recorder {
	t.Helper()
	r := &recorder{}
	id, err := f.hub.Open(context.Background(), r)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if token != "" {
		f.hub.Receive(id, []byte(`{"type":"auth","token":"`+token+`"}`)) //nolint:errcheck
	}
	if room != "" {
		f.hub.Receive(id, []byte(`{"type":"join_room","room":"`+room+`"}`)) //nolint:errcheck
	}
	f.hub.Stats(context.Background()) //nolint:errcheck
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func lastFrame(t *testing.T, r *recorder) map[string]interface{} {
	t.Helper()
	frames := r.all()
	if len(frames) == 0 {
		t.Fatal("no frames received")
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(frames[len(frames)-1]), &m); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return m
}

// --- tests ------------------------------------------------------------------

func TestHealth(t *testing.T) {
	f := newFixture(t, auth.APIKeyMiddleware("apikey", "X-Api-Key", "secret"))
	rr := do(t, f.handler, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" {
		t.Errorf("status: got %q, want ok", resp.Status)
	}
}

func TestGuard_RejectsMissingKey(t *testing.T) {
	f := newFixture(t, auth.APIKeyMiddleware("apikey", "X-Api-Key", "secret"))

	rr := do(t, f.handler, http.MethodGet, "/api/v1/stats", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("without key: got %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("X-Api-Key", "secret")
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("with key: got %d, want 200", rr.Code)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "alice", "story_1")
	f.connect(t, "", "")

	rr := do(t, f.handler, http.MethodGet, "/api/v1/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var snap hub.Snapshot
	decode(t, rr, &snap)
	if snap.TotalConnections != 2 || snap.AuthenticatedUsers != 1 || snap.ActiveRooms != 1 {
		t.Errorf("snapshot: got %+v", snap)
	}
	if len(snap.PerRoom) != 1 || snap.PerRoom[0].ID != "story_1" || snap.PerRoom[0].MemberCount != 1 {
		t.Errorf("perRoom: got %+v", snap.PerRoom)
	}
}

func TestRoomMembers(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "alice", "lobby")

	rr := do(t, f.handler, http.MethodGet, "/api/v1/rooms/lobby/members", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RoomMembersResponse
	decode(t, rr, &resp)
	if resp.Room != "lobby" || len(resp.Users) != 1 || resp.Users[0].ID != 7 {
		t.Errorf("members: got %+v", resp)
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/rooms/nope/members", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown room: got %d, want 404", rr.Code)
	}
}

func TestNewStory_BroadcastsToEveryone(t *testing.T) {
	f := newFixture(t, nil)
	anon := f.connect(t, "", "")

	rr := do(t, f.handler, http.MethodPost, "/api/v1/stories", `{"id":3,"title":"t"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body %s)", rr.Code, rr.Body.String())
	}
	m := lastFrame(t, anon)
	if m["type"] != "new_story" {
		t.Errorf("frame type: got %v, want new_story", m["type"])
	}
}

func TestNewStory_InvalidJSON(t *testing.T) {
	f := newFixture(t, nil)
	rr := do(t, f.handler, http.MethodPost, "/api/v1/stories", `{"id":`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestNewComment(t *testing.T) {
	f := newFixture(t, nil)
	member := f.connect(t, "alice", "story_42")

	rr := do(t, f.handler, http.MethodPost, "/api/v1/comments",
		`{"comment":{"id":5,"body":"hi"},"story":{"id":42}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body %s)", rr.Code, rr.Body.String())
	}
	m := lastFrame(t, member)
	if m["type"] != "new_comment" {
		t.Errorf("frame type: got %v, want new_comment", m["type"])
	}
}

func TestNewComment_BadRequests(t *testing.T) {
	f := newFixture(t, nil)
	for name, body := range map[string]string{
		"missing story":    `{"comment":{"id":5}}`,
		"story without id": `{"comment":{"id":5},"story":{"title":"x"}}`,
		"not an object":    `[1]`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := do(t, f.handler, http.MethodPost, "/api/v1/comments", body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

func TestNotifyUser(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.connect(t, "alice", "")

	rr := do(t, f.handler, http.MethodPost, "/api/v1/users/7/notify", `{"type":"mention","by":"bob"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.NotifyResponse
	decode(t, rr, &resp)
	if !resp.Delivered {
		t.Error("delivered: got false, want true")
	}
	frames := alice.all()
	if got := frames[len(frames)-1]; got != `{"type":"mention","by":"bob"}` {
		t.Errorf("delivered frame: got %s", got)
	}

	rr = do(t, f.handler, http.MethodPost, "/api/v1/users/99/notify", `{}`)
	decode(t, rr, &resp)
	if resp.Delivered {
		t.Error("unknown user: delivered should be false")
	}

	rr = do(t, f.handler, http.MethodPost, "/api/v1/users/abc/notify", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want 400", rr.Code)
	}
}

func TestMetricsAndRouting(t *testing.T) {
	f := newFixture(t, auth.APIKeyMiddleware("apikey", "X-Api-Key", "secret"))

	rr := do(t, f.handler, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Body.String(), "# metrics") {
		t.Errorf("/metrics: got %d %q", rr.Code, rr.Body.String())
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/nothing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown path: got %d, want 404", rr.Code)
	}

	rr = do(t, f.handler, http.MethodDelete, "/api/v1/health", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE health: got %d, want 405", rr.Code)
	}

	rr = do(t, f.handler, http.MethodDelete, "/api/v1/stats", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE stats: got %d, want 405", rr.Code)
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("health without key: got %d, want 200", rr.Code)
	}
}
