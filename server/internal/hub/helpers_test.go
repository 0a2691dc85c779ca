package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storyhub/presencehub/server/internal/auth"
	"github.com/storyhub/presencehub/server/internal/hub"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ------------------------------------------------------------------

// fakeValidator accepts the usernames it knows as tokens and
// maps a few fixed tokens onto the auth error kinds.
type fakeValidator struct {
	users map[string]auth.Claims
}

func (v fakeValidator) Validate(token string) (*auth.Claims, error) {
	switch token {
	case "":
		return nil, fmt.Errorf("%w: empty", auth.ErrTokenMalformed)
	case "expired":
		return nil, fmt.Errorf("%w: exp", auth.ErrTokenExpired)
	case "garbage":
		return nil, fmt.Errorf("%w: parse", auth.ErrTokenMalformed)
	}
	c, ok := v.users[token]
	if !ok {
		return nil, fmt.Errorf("%w: signature", auth.ErrTokenInvalid)
	}
	return &c, nil
}

func newValidator() fakeValidator {
	return fakeValidator{users: map[string]auth.Claims{
		"alice": {UserID: 7, Username: "alice", Scopes: []string{"read"}},
		"bob":   {UserID: 9, Username: "bob"},
		"carol": {UserID: 11, Username: "carol"},
	}}
}

var errFull = errors.New("send buffer full")

// fakeSender records every frame the hub queues for it.
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed int
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errFull
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) setFull(full bool) {
	s.mu.Lock()
	s.full = full
	s.mu.Unlock()
}

func (s *fakeSender) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// take returns and clears the recorded frames, decoded.
func (s *fakeSender) take(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	raw := s.frames
	s.frames = nil
	s.mu.Unlock()

	out := make([]map[string]any, 0, len(raw))
	for _, b := range raw {
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m), "frame %s", b)
		out = append(out, m)
	}
	return out
}

// takeRaw returns and clears the recorded frames as sent.
func (s *fakeSender) takeRaw() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := s.frames
	s.frames = nil
	return raw
}

// --- harness ----------------------------------------------------------------

type observed struct {
	mu       sync.Mutex
	handled  map[string]int
	rejected map[string]int
}

func (o *observed) FrameHandled(typ string) {
	o.mu.Lock()
	o.handled[typ]++
	o.mu.Unlock()
}

func (o *observed) FrameRejected(kind string) {
	o.mu.Lock()
	o.rejected[kind]++
	o.mu.Unlock()
}

func (o *observed) counts() (handled, rejected map[string]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := make(map[string]int, len(o.handled))
	for k, v := range o.handled {
		h[k] = v
	}
	r := make(map[string]int, len(o.rejected))
	for k, v := range o.rejected {
		r[k] = v
	}
	return h, r
}

type harness struct {
	t   *testing.T
	hub *hub.Hub
	obs *observed
	ctx context.Context
}

// startHub runs a hub with a fixed clock until the test ends.
func startHub(t *testing.T) *harness {
	t.Helper()

	obs := &observed{handled: map[string]int{}, rejected: map[string]int{}}
	h := hub.New(newValidator(),
		hub.WithClock(func() time.Time { return epoch }),
		hub.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		hub.WithObserver(obs),
	)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return &harness{t: t, hub: h, obs: obs, ctx: ctx}
}

// open registers a fake connection and discards its welcome frame.
func (hs *harness) open() (*fakeSender, hub.ConnID) {
	hs.t.Helper()
	s := &fakeSender{}
	id, err := hs.hub.Open(hs.ctx, s)
	require.NoError(hs.t, err)
	s.take(hs.t)
	return s, id
}

// send queues a client frame and waits until the loop has handled it.
func (hs *harness) send(id hub.ConnID, frame string) {
	hs.t.Helper()
	require.NoError(hs.t, hs.hub.Receive(id, []byte(frame)))
	hs.sync()
}

func (hs *harness) close(id hub.ConnID) {
	hs.t.Helper()
	require.NoError(hs.t, hs.hub.Disconnect(id, nil))
	hs.sync()
}

// sync returns once every previously queued event has been applied.
func (hs *harness) sync() hub.Snapshot {
	hs.t.Helper()
	s, err := hs.hub.Stats(hs.ctx)
	require.NoError(hs.t, err)
	return s
}

// authed opens a connection and authenticates it with token.
func (hs *harness) authed(token string) (*fakeSender, hub.ConnID) {
	hs.t.Helper()
	s, id := hs.open()
	hs.send(id, `{"type":"auth","token":"`+token+`"}`)
	frames := s.take(hs.t)
	require.Len(hs.t, frames, 1)
	require.Equal(hs.t, "auth_success", frames[0]["type"])
	return s, id
}

// joined opens, authenticates and joins room.
func (hs *harness) joined(token, room string) (*fakeSender, hub.ConnID) {
	hs.t.Helper()
	s, id := hs.authed(token)
	hs.send(id, `{"type":"join_room","room":"`+room+`"}`)
	s.take(hs.t)
	return s, id
}

func userID(t *testing.T, frame map[string]any) float64 {
	t.Helper()
	u, ok := frame["user"].(map[string]any)
	require.True(t, ok, "frame has no user: %v", frame)
	return u["id"].(float64)
}

// stallSender blocks the loop inside its first Send until released.
type stallSender struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallSender() *stallSender {
	return &stallSender{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stallSender) Send([]byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return nil
}

func (s *stallSender) Close() error { return nil }

// stall parks the loop goroutine until the returned func is called.
func (hs *harness) stall() (resume func()) {
	hs.t.Helper()
	s := newStallSender()
	go hs.hub.Open(hs.ctx, s) //nolint:errcheck
	<-s.entered
	var once sync.Once
	resume = func() { once.Do(func() { close(s.release) }) }
	hs.t.Cleanup(resume)
	return resume
}
