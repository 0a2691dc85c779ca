package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storyhub/presencehub/server/internal/hub"
)

const namespace = "presencehub"

// scrapeTimeout bounds the Stats call made on every scrape.
const scrapeTimeout = 2 * time.Second

// MaxRoomSeries caps presencehub_room_members series. Room ids come from
// clients, so only the busiest rooms get their own series; the members of
// the rest are summed under OtherRooms.
const (
	MaxRoomSeries = 50
	OtherRooms    = "_other"
)

// StatsSource is the hub's snapshot call.
type StatsSource interface {
	Stats(ctx context.Context) (hub.Snapshot, error)
}

// Metrics owns a private registry with the hub's counters and, once Track is
// called, its state gauges. It implements hub.Observer.
type Metrics struct {
	registry *prometheus.Registry
	frames   *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

// New creates the registry with the frame counters and the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Client frames handled successfully, by frame type.",
			},
			[]string{"type"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frame_errors_total",
				Help:      "Client frames answered with an error frame, by error kind.",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.frames,
		m.errors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// FrameHandled implements hub.Observer.
func (m *Metrics) FrameHandled(frameType string) {
	m.frames.WithLabelValues(frameType).Inc()
}

// FrameRejected implements hub.Observer.
func (m *Metrics) FrameRejected(kind string) {
	m.errors.WithLabelValues(kind).Inc()
}

// Track registers gauges computed from src at scrape time.
func (m *Metrics) Track(src StatsSource) error {
	return m.registry.Register(newHubCollector(src))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: slogPrinter{},
	})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// hubCollector turns one hub snapshot into gauges on every scrape.
type hubCollector struct {
	src StatsSource

	connections *prometheus.Desc
	users       *prometheus.Desc
	rooms       *prometheus.Desc
	members     *prometheus.Desc
}

func newHubCollector(src StatsSource) *hubCollector {
	return &hubCollector{
		src: src,
		connections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connections"),
			"Open transport connections.", nil, nil),
		users: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "authenticated_users"),
			"Users with a current authenticated connection.", nil, nil),
		rooms: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_rooms"),
			"Rooms with at least one member.", nil, nil),
		members: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "room_members"),
			"Members per active room, busiest rooms only.", []string{"room"}, nil),
	}
}

func (c *hubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.users
	ch <- c.rooms
	ch <- c.members
}

func (c *hubCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	snap, err := c.src.Stats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.connections, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(snap.TotalConnections))
	ch <- prometheus.MustNewConstMetric(c.users, prometheus.GaugeValue, float64(snap.AuthenticatedUsers))
	ch <- prometheus.MustNewConstMetric(c.rooms, prometheus.GaugeValue, float64(snap.ActiveRooms))
	top, rest := busiest(snap.PerRoom, MaxRoomSeries)
	for _, r := range top {
		ch <- prometheus.MustNewConstMetric(c.members, prometheus.GaugeValue, float64(r.MemberCount), r.ID)
	}
	if len(rest) > 0 {
		var sum int
		for _, r := range rest {
			sum += r.MemberCount
		}
		ch <- prometheus.MustNewConstMetric(c.members, prometheus.GaugeValue, float64(sum), OtherRooms)
	}
}

// busiest splits rooms into the n with the most members (ties by id) and
// the remainder.
func busiest(rooms []hub.RoomStats, n int) (top, rest []hub.RoomStats) {
	if len(rooms) <= n {
		return rooms, nil
	}
	sorted := append([]hub.RoomStats(nil), rooms...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MemberCount != sorted[j].MemberCount {
			return sorted[i].MemberCount > sorted[j].MemberCount
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[:n], sorted[n:]
}

// slogPrinter adapts promhttp's error log to slog.
type slogPrinter struct{}

func (slogPrinter) Println(v ...interface{}) {
	slog.Error("metrics: scrape error", "err", v)
}
