package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/storyhub/presencehub/server/internal/hub"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	defaultPongWait       = 60 * time.Second
	defaultSendBuffer     = 64
	defaultMaxMessageSize = 4096
)

var (
	errSendBufferFull = errors.New("ws: send buffer full")
	errClientClosed   = errors.New("ws: client closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; CORS belongs at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is the part of *hub.Hub the transport talks to.
type Hub interface {
	Open(ctx context.Context, s hub.Sender) (hub.ConnID, error)
	Receive(id hub.ConnID, data []byte) error
	Disconnect(id hub.ConnID, err error) error
}

// Options tune per-connection limits. Zero values fall back to defaults.
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	PongWait       time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	return o
}

// Server upgrades HTTP requests to WebSocket connections and bridges each one
// to the hub: inbound text frames go to Hub.Receive, hub output is written
// back through a buffered per-client queue.
type Server struct {
	hub    Hub
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New creates a Server feeding h.
func New(h Hub, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:     h,
		opts:    opts.withDefaults(),
		logger:  logger.With("component", "ws"),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the HTTP connection and serves the client until it
// disconnects. The hub's welcome frame is the first message the client sees.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, s.opts.SendBuffer),
		done:     make(chan struct{}),
		pongWait: s.opts.PongWait,
	}
	id, err := s.hub.Open(r.Context(), c)
	if err != nil {
		s.logger.Warn("hub rejected connection", "remote", r.RemoteAddr, "err", err)
		conn.Close()
		return
	}
	c.id = id

	s.register(c)
	defer s.unregister(c)

	go c.writePump()
	cause := c.readPump(s.hub, s.opts.MaxMessageSize)
	c.Close() //nolint:errcheck

	if err := s.hub.Disconnect(id, cause); err != nil && !errors.Is(err, hub.ErrClosed) {
		s.logger.Error("report disconnect", "conn", id, "err", err)
	}
}

// Count returns the number of currently connected clients.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// --- client -----------------------------------------------------------------

// client is one WebSocket connection. It implements hub.Sender.
type client struct {
	id       hub.ConnID
	conn     *websocket.Conn
	send     chan []byte
	pongWait time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// Send queues data for the write pump without blocking.
func (c *client) Send(data []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the write pump, which closes the socket and so ends the read
// pump. Safe to call more than once.
func (c *client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump forwards data frames, text or binary, to the hub in arrival
// order; the hub answers anything it cannot decode with an error frame. It blocks until
// the connection ends and returns the transport error, or nil for a clean
// close.
func (c *client) readPump(h Hub, limit int64) error {
	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed() || websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return err
		}
		if err := h.Receive(c.id, msg); err != nil {
			return nil
		}
	}
}
