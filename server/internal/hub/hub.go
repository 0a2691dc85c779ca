package hub

import (
	"context"
	"log/slog"
	"time"
)

// defaultQueueSize is the depth of the event channel.
const defaultQueueSize = 256

// Observer receives per-frame outcomes. metrics.Observer implements it.
type Observer interface {
	FrameHandled(frameType string)
	FrameRejected(kind string)
}

type nopObserver struct{}

func (nopObserver) FrameHandled(string)  {}
func (nopObserver) FrameRejected(string) {}

// Hub is the presence-and-broadcast event loop. See the package doc.
type Hub struct {
	validator TokenValidator
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time // injectable for deterministic tests

	events chan event
	done   chan struct{}

	// Owned by the Run goroutine.
	conns *registry
	rooms *roomManager
	users *userIndex
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithObserver registers an Observer for frame outcomes.
func WithObserver(o Observer) Option {
	return func(h *Hub) { h.observer = o }
}

// WithQueueSize sets the depth of the event channel.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.events = make(chan event, n)
		}
	}
}

// New creates a Hub that verifies auth frames with v. Call Run to start it.
func New(v TokenValidator, opts ...Option) *Hub {
	h := &Hub{
		validator: v,
		observer:  nopObserver{},
		logger:    slog.Default(),
		now:       time.Now,
		events:    make(chan event, defaultQueueSize),
		done:      make(chan struct{}),
		conns:     newRegistry(),
		rooms:     newRoomManager(),
		users:     newUserIndex(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub")
	return h
}

// Run consumes events until ctx is cancelled, then closes every connection.
// Run must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.events:
			ev.apply(h)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Open registers a new transport connection and sends it the welcome frame.
// The transport must call Disconnect for the returned id when it closes.
func (h *Hub) Open(ctx context.Context, s Sender) (ConnID, error) {
	reply := make(chan ConnID, 1)
	if err := h.enqueue(ctx, openEvent{sender: s, reply: reply}); err != nil {
		return 0, err
	}
	// Once queued the open will be applied; ctx no longer applies.
	select {
	case id := <-reply:
		return id, nil
	case <-h.done:
		return 0, ErrClosed
	}
}

// Receive queues one inbound frame from connection id. Frames queued by a
// single goroutine are handled in that order.
func (h *Hub) Receive(id ConnID, data []byte) error {
	return h.enqueue(context.Background(), frameEvent{id: id, data: data})
}

// Disconnect reports that connection id has closed. A nil err is a graceful
// close; anything else is logged as a transport error. Cleanup is the same.
func (h *Hub) Disconnect(id ConnID, err error) error {
	return h.enqueue(context.Background(), closeEvent{id: id, err: err})
}

func (h *Hub) enqueue(ctx context.Context, ev event) error {
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and waits for it to finish. ctx bounds only the
// wait for queue space: an error means fn did not and will not run.
func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := h.enqueue(ctx, callEvent{fn: fn, done: finished}); err != nil {
		return err
	}
	// Once queued fn runs unless the hub stops first; ctx no longer applies.
	select {
	case <-finished:
		return nil
	case <-h.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (h *Hub) shutdown() {
	n := h.conns.len()
	for _, c := range h.conns.conns {
		c.sender.Close() //nolint:errcheck
	}
	h.conns = newRegistry()
	h.rooms = newRoomManager()
	h.users = newUserIndex()
	h.logger.Info("hub stopped", "closed_connections", n)
}

// --- events -----------------------------------------------------------------

type event interface {
	apply(h *Hub)
}

type openEvent struct {
	sender Sender
	reply  chan<- ConnID
}

type frameEvent struct {
	id   ConnID
	data []byte
}

type closeEvent struct {
	id  ConnID
	err error
}

type callEvent struct {
	fn   func()
	done chan<- struct{}
}

func (e openEvent) apply(h *Hub) {
	c := h.conns.open(e.sender)
	h.logger.Debug("connection opened", "conn", c.id, "connections", h.conns.len())
	h.sendTo(c.id, welcomeFrame{
		header:       h.header(TypeWelcome),
		Message:      welcomeText,
		ConnectionID: c.id,
	})
	e.reply <- c.id
}

func (e frameEvent) apply(h *Hub) { h.dispatch(e.id, e.data) }

func (e closeEvent) apply(h *Hub) { h.disconnect(e.id, e.err) }

func (e callEvent) apply(h *Hub) {
	e.fn()
	close(e.done)
}
