package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/link"
)

const (
	namespace = "graylogic_edge"

	// readHeaderTimeout bounds slow scrapers.
	readHeaderTimeout = 5 * time.Second

	// shutdownTimeout bounds the listener's graceful shutdown.
	shutdownTimeout = 2 * time.Second
)

// Reassociation outcomes.
const (
	OutcomeAssociated = "associated"
	OutcomeCancelled  = "cancelled"
	OutcomeFailed     = "failed"
)

// Sources are the live values read at scrape time. Nil fields are skipped.
type Sources struct {
	Events           *events.Stats
	LinkState        func() link.State
	SessionConnected func() bool
	BusPending       func() int

	// SupervisorRestarts reports restarts of a supervised link daemon.
	SupervisorRestarts func() int
}

// Registry owns the node's collectors.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	reg         *prometheus.Registry
	constLabels prometheus.Labels

	linkWait       prometheus.Histogram
	reassociations *prometheus.CounterVec

	mu  sync.RWMutex
	src Sources
}

// New creates a registry with Go runtime and process collectors and the
// event-driven metrics. Scrape-time gauges are added by Bind.
func New(nodeID string) *Registry {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"node": nodeID}

	r := &Registry{
		reg:         reg,
		constLabels: constLabels,
		linkWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "link",
			Name:        "wait_seconds",
			Help:        "Time from association request to associated.",
			ConstLabels: constLabels,
			Buckets:     []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		reassociations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "link",
			Name:        "reassociations_total",
			Help:        "Reassociation attempts after link loss by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}), // outcome=associated|cancelled|failed
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.linkWait,
		r.reassociations,
	)
	return r
}

// Bind registers the scrape-time collectors for src. Call it once.
func (r *Registry) Bind(src Sources) error {
	constLabels := r.constLabels
	var cs []prometheus.Collector

	counter := func(name, help string, v func() uint64) {
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "session",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return float64(v()) }))
	}

	if s := src.Events; s != nil {
		counter("connects_total", "CONNACKs received, including reconnects.", s.Connects.Load)
		counter("disconnects_total", "Broker connection losses.", s.Disconnects.Load)
		counter("subscribes_total", "SUBACKs received, including resubscriptions.", s.Subscribes.Load)
		counter("messages_received_total", "Inbound messages reported.", s.Received.Load)
		counter("messages_dropped_empty_total", "Inbound messages with empty payload dropped by policy.", s.DroppedEmpty.Load)
		counter("other_events_total", "Protocol events without a dedicated kind.", s.Other.Load)
	}

	if f := src.LinkState; f != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "link",
			Name:        "associated",
			Help:        "1 while the station is associated.",
			ConstLabels: constLabels,
		}, func() float64 { return boolFloat(f() == link.StateAssociated) }))
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "link",
			Name:        "state",
			Help:        "Link state as a number (0 uninitialized ... 5 disassociated).",
			ConstLabels: constLabels,
		}, func() float64 { return float64(f()) }))
	}

	if f := src.SessionConnected; f != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "session",
			Name:        "connected",
			Help:        "1 while the broker session is connected.",
			ConstLabels: constLabels,
		}, func() float64 { return boolFloat(f()) }))
	}

	if f := src.BusPending; f != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "events",
			Name:        "pending",
			Help:        "Events queued for the handler.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(f()) }))
	}

	if f := src.SupervisorRestarts; f != nil {
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "link",
			Name:        "supervisor_restarts_total",
			Help:        "Restarts of the supervised link daemon.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(f()) }))
	}

	for _, c := range cs {
		if err := r.reg.Register(c); err != nil {
			return fmt.Errorf("metrics: register: %w", err)
		}
	}

	r.mu.Lock()
	r.src = src
	r.mu.Unlock()
	return nil
}

// ObserveLinkWait records how long association took.
func (r *Registry) ObserveLinkWait(d time.Duration) {
	r.linkWait.Observe(d.Seconds())
}

// IncReassociation records the outcome of a reassociation attempt.
func (r *Registry) IncReassociation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	r.reassociations.WithLabelValues(outcome).Inc()
}

// Handler returns the /metrics handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and embedding.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Serve runs the /metrics and /healthz listener on addr until ctx is done.
//
// Returns:
//   - error: nil after a clean shutdown, otherwise the listen error
func (r *Registry) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	return r.serve(ctx, ln)
}

func (r *Registry) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
