package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/storyhub/presencehub/pkg/pushapi"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	defaultBufferSize = 1000
)

// Config controls where and how events are shipped.
type Config struct {
	// Endpoint is the host:port of the presencehub gRPC push service.
	Endpoint string

	// APIKey is sent in Header on every call when non-empty.
	APIKey string
	Header string

	// CAFile enables TLS, verifying the server against this CA bundle.
	CAFile string

	// BufferSize is the in-memory queue depth (default 1000).
	BufferSize int
}

// Stats counts what happened to shipped events.
type Stats struct {
	Delivered int64
	Discarded int64
	Evicted   int64
}

// Shipper buffers push events and ships them to the presencehub server via
// gRPC. Ship() is non-blocking; when the buffer is full the oldest event is
// evicted. Run() must be called in a goroutine to drain the buffer and handle
// reconnection.
type Shipper struct {
	cfg    Config
	buf    chan pushapi.Event
	dialFn dialFunc // injectable for tests

	pending   sync.WaitGroup
	delivered atomic.Int64
	discarded atomic.Int64
	evicted   atomic.Int64
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(ctx context.Context, cfg Config) (*grpc.ClientConn, error)

// New creates a Shipper using cfg.
func New(cfg Config) *Shipper {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan pushapi.Event, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues ev. If the buffer is full the oldest entry is evicted to
// make room. Invalid events are rejected immediately.
func (s *Shipper) Ship(ev pushapi.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.pending.Add(1)
	select {
	case s.buf <- ev:
	default:
		// Buffer full; drop the oldest event, keep the newest.
		select {
		case old := <-s.buf:
			s.evicted.Add(1)
			s.pending.Done()
			slog.Warn("shipper: buffer full, evicted oldest event",
				"type", old.Type, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- ev
	}
	return nil
}

// Flush blocks until every shipped event has been delivered, discarded or
// evicted, or ctx is done. Call it after the last Ship.
func (s *Shipper) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns delivery counters.
func (s *Shipper) Stats() Stats {
	return Stats{
		Delivered: s.delivered.Load(),
		Discarded: s.discarded.Load(),
		Evicted:   s.evicted.Load(),
	}
}

// Run drains the buffer, sending events to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.Endpoint,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.Endpoint)
		bo.reset()

		err = s.drain(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.Endpoint,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain reads from the buffer and sends events until the connection fails
// or ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn) error {
	client := pushapi.NewClient(conn, s.cfg.Header, s.cfg.APIKey)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-s.buf:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			delivered, err := ev.Apply(sendCtx, client)
			cancel()

			if err != nil {
				// Permanent errors (unauthenticated, invalid arg) are logged and
				// discarded; anything else puts the event back and reconnects.
				if isPermanentError(err) {
					s.discarded.Add(1)
					s.pending.Done()
					slog.Error("shipper: permanent send error, discarding event",
						"type", ev.Type, "err", err)
					continue
				}
				select {
				case s.buf <- ev:
				default:
					s.discarded.Add(1)
					s.pending.Done()
				}
				return fmt.Errorf("send: %w", err)
			}

			s.delivered.Add(1)
			s.pending.Done()
			if ev.Type == pushapi.EventNotifyUser && !delivered {
				slog.Info("shipper: user not connected", "user", ev.UserID)
			} else {
				slog.Debug("shipper: event delivered", "type", ev.Type)
			}
		}
	}
}

// isPermanentError returns true for errors that indicate the event itself
// is invalid and should not be retried.
func isPermanentError(err error) bool {
	if errors.Is(err, pushapi.ErrInvalidEvent) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		// Local encoding failures never reached the server.
		return true
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to cfg.Endpoint.
func defaultDial(ctx context.Context, cfg Config) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, cfg.Endpoint, opts...) //nolint:staticcheck // deprecated in 1.63 but DialContext is used for compat
}

// dialOptions selects TLS when a CA bundle is configured, plaintext otherwise.
func dialOptions(cfg Config) ([]grpc.DialOption, error) {
	if cfg.CAFile == "" {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
	creds, err := buildTLSCreds(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("shipper: build tls creds: %w", err)
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
}

func buildTLSCreds(caFile string) (credentials.TransportCredentials, error) {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certs in ca file %q", caFile)
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}), nil
}

// Dial exposes the shipper's dialer for one-shot commands.
func Dial(ctx context.Context, cfg Config) (*grpc.ClientConn, error) {
	return defaultDial(ctx, cfg)
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
