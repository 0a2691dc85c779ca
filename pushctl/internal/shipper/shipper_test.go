package shipper

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/storyhub/presencehub/pkg/pushapi"
)

// mockServer implements PushServiceServer for testing.
type mockServer struct {
	pushapi.UnimplementedPushServiceServer
	mu       sync.Mutex
	stories  []*structpb.Struct
	notifies []*structpb.Struct
	keys     []string
	rejectN  int // reject the first N story calls with InvalidArgument
}

func (m *mockServer) BroadcastNewStory(ctx context.Context, s *structpb.Struct) (*emptypb.Empty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		m.keys = append(m.keys, md.Get("x-api-key")...)
	}
	if m.rejectN > 0 {
		m.rejectN--
		return nil, status.Error(codes.InvalidArgument, "mock rejection")
	}
	m.stories = append(m.stories, s)
	return &emptypb.Empty{}, nil
}

func (m *mockServer) NotifyUser(_ context.Context, s *structpb.Struct) (*wrapperspb.BoolValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifies = append(m.notifies, s)
	return wrapperspb.Bool(true), nil
}

func (m *mockServer) received() []*structpb.Struct {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*structpb.Struct, len(m.stories))
	copy(out, m.stories)
	return out
}

// startTestServer starts an in-process gRPC server and returns a dial
// function that connects to it.
func startTestServer(t *testing.T, srv *mockServer) dialFunc {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	gs := grpc.NewServer()
	pushapi.RegisterPushServiceServer(gs, srv)

	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	addr := lis.Addr().String()
	return func(ctx context.Context, _ Config) (*grpc.ClientConn, error) {
		return grpc.DialContext(ctx, addr, //nolint:staticcheck
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func story(id int) pushapi.Event {
	return pushapi.Event{Type: pushapi.EventNewStory, Story: json.RawMessage(`{"id":` + strconv.Itoa(id) + `}`)}
}

func testCfg() Config {
	return Config{Endpoint: "unused-overridden-by-dialFn", BufferSize: 10}
}

func startShipper(t *testing.T, cfg Config, dial dialFunc) *Shipper {
	t.Helper()
	s := New(cfg)
	s.dialFn = dial
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s
}

func flush(t *testing.T, s *Shipper) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

// --- Tests ---

func TestShipper_DeliversEvent(t *testing.T) {
	srv := &mockServer{}
	s := startShipper(t, testCfg(), startTestServer(t, srv))

	if err := s.Ship(story(1)); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	flush(t, s)

	got := srv.received()
	if len(got) != 1 {
		t.Fatalf("server received %d stories, want 1", len(got))
	}
	if id := got[0].GetFields()["id"].GetNumberValue(); id != 1 {
		t.Errorf("story id = %v, want 1", id)
	}
	if st := s.Stats(); st.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", st.Delivered)
	}
}

func TestShipper_MultipleEvents(t *testing.T) {
	srv := &mockServer{}
	s := startShipper(t, testCfg(), startTestServer(t, srv))

	for i := 0; i < 5; i++ {
		s.Ship(story(i)) //nolint:errcheck
	}
	s.Ship(pushapi.Event{Type: pushapi.EventNotifyUser, UserID: 7, Message: json.RawMessage(`{}`)}) //nolint:errcheck
	flush(t, s)

	if got := len(srv.received()); got != 5 {
		t.Errorf("server received %d stories, want 5", got)
	}
	srv.mu.Lock()
	n := len(srv.notifies)
	srv.mu.Unlock()
	if n != 1 {
		t.Errorf("server received %d notifies, want 1", n)
	}
}

func TestShipper_SendsAPIKey(t *testing.T) {
	srv := &mockServer{}
	cfg := testCfg()
	cfg.APIKey = "k-123"
	s := startShipper(t, cfg, startTestServer(t, srv))

	s.Ship(story(1)) //nolint:errcheck
	flush(t, s)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.keys) != 1 || srv.keys[0] != "k-123" {
		t.Errorf("api keys seen: %v, want [k-123]", srv.keys)
	}
}

func TestShipper_PermanentErrorDiscards(t *testing.T) {
	srv := &mockServer{rejectN: 1}
	s := startShipper(t, testCfg(), startTestServer(t, srv))

	s.Ship(story(1)) //nolint:errcheck
	s.Ship(story(2)) //nolint:errcheck
	flush(t, s)

	got := srv.received()
	if len(got) != 1 || got[0].GetFields()["id"].GetNumberValue() != 2 {
		t.Errorf("received %v, want only story 2", got)
	}
	if st := s.Stats(); st.Discarded != 1 || st.Delivered != 1 {
		t.Errorf("Stats = %+v, want 1 delivered, 1 discarded", st)
	}
}

func TestShipper_RejectsInvalidEvent(t *testing.T) {
	s := New(testCfg())
	if err := s.Ship(pushapi.Event{Type: "dance"}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if len(s.buf) != 0 {
		t.Errorf("buffer has %d items, want 0", len(s.buf))
	}
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	// BufferSize=3; Ship 5 items while the shipper is not running.
	// Only the 3 most recent should survive.
	s := New(Config{BufferSize: 3})

	for i := 0; i < 5; i++ {
		s.Ship(story(i)) //nolint:errcheck
	}

	var ids []string
	for {
		select {
		case ev := <-s.buf:
			ids = append(ids, string(ev.Story))
		default:
			goto done
		}
	}
done:

	want := []string{`{"id":2}`, `{"id":3}`, `{"id":4}`}
	if len(ids) != len(want) {
		t.Fatalf("buffer has %d items, want 3", len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	if st := s.Stats(); st.Evicted != 2 {
		t.Errorf("Evicted = %d, want 2", st.Evicted)
	}
}

func TestShipper_BackoffResets(t *testing.T) {
	b := newBackoff()
	first := b.next()
	if first > 2*time.Second {
		t.Errorf("first backoff too large: %v", first)
	}
	for i := 0; i < 10; i++ {
		b.next()
	}
	b.reset()
	after := b.next()
	if after > 2*time.Second {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 50; i++ {
		d := b.next()
		// With jitter, max is backoffMax * 1.25
		if d > backoffMax*5/4 {
			t.Errorf("backoff[%d] = %v, exceeds 1.25×max", i, d)
		}
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	srv := &mockServer{}
	dial := startTestServer(t, srv)

	s := New(testCfg())
	s.dialFn = dial

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Give it time to connect, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
