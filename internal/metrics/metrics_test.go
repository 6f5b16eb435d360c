package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/link"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestBind_ReadsSourcesAtScrape(t *testing.T) {
	r := New("edge-001")

	var stats events.Stats
	state := link.StateConnecting
	connected := false

	err := r.Bind(Sources{
		Events:             &stats,
		LinkState:          func() link.State { return state },
		SessionConnected:   func() bool { return connected },
		BusPending:         func() int { return 3 },
		SupervisorRestarts: func() int { return 2 },
	})
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	body := scrape(t, r.Handler())
	for _, want := range []string{
		`graylogic_edge_link_associated{node="edge-001"} 0`,
		`graylogic_edge_session_connected{node="edge-001"} 0`,
		`graylogic_edge_events_pending{node="edge-001"} 3`,
		`graylogic_edge_link_supervisor_restarts_total{node="edge-001"} 2`,
		`graylogic_edge_session_messages_received_total{node="edge-001"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}

	stats.Received.Add(5)
	stats.DroppedEmpty.Add(1)
	state = link.StateAssociated
	connected = true

	body = scrape(t, r.Handler())
	for _, want := range []string{
		`graylogic_edge_link_associated{node="edge-001"} 1`,
		`graylogic_edge_session_connected{node="edge-001"} 1`,
		`graylogic_edge_session_messages_received_total{node="edge-001"} 5`,
		`graylogic_edge_session_messages_dropped_empty_total{node="edge-001"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestBind_Twice(t *testing.T) {
	r := New("edge-001")
	src := Sources{SessionConnected: func() bool { return true }}
	if err := r.Bind(src); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := r.Bind(src); err == nil {
		t.Error("second Bind() error = nil, want duplicate registration error")
	}
}

func TestEventMetrics(t *testing.T) {
	r := New("edge-001")
	r.ObserveLinkWait(3 * time.Second)
	r.IncReassociation(OutcomeAssociated)
	r.IncReassociation(OutcomeAssociated)
	r.IncReassociation("")

	body := scrape(t, r.Handler())
	for _, want := range []string{
		`graylogic_edge_link_wait_seconds_count{node="edge-001"} 1`,
		`graylogic_edge_link_reassociations_total{node="edge-001",outcome="associated"} 2`,
		`graylogic_edge_link_reassociations_total{node="edge-001",outcome="unknown"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestServe(t *testing.T) {
	r := New("edge-001")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "graylogic_edge_link_wait_seconds") {
		t.Error("listener did not serve the registry")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	r := New("edge-001")
	if err := r.Serve(context.Background(), "256.0.0.1:bad"); err == nil {
		t.Error("Serve() error = nil for an invalid address")
	}
}

// =============================================================================
// Router Tests
// =============================================================================

func TestHealthz(t *testing.T) {
	r := New("edge-001")
	state := link.StateConnecting
	connected := true
	if err := r.Bind(Sources{
		LinkState:        func() link.State { return state },
		SessionConnected: func() bool { return connected },
	}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	get := func() (int, Health) {
		t.Helper()
		rec := httptest.NewRecorder()
		r.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var h Health
		if err := json.NewDecoder(rec.Body).Decode(&h); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return rec.Code, h
	}

	code, h := get()
	if code != http.StatusServiceUnavailable || h.Status != HealthDegraded || h.Link != "connecting" {
		t.Errorf("healthz = %d %+v, want 503 degraded connecting", code, h)
	}

	state = link.StateAssociated
	code, h = get()
	if code != http.StatusOK || h.Status != HealthOK || !h.Session {
		t.Errorf("healthz = %d %+v, want 200 ok", code, h)
	}

	connected = false
	if code, _ = get(); code != http.StatusServiceUnavailable {
		t.Errorf("healthz with session down = %d, want 503", code)
	}
}

func TestHealthz_Unbound(t *testing.T) {
	r := New("edge-001")
	if h := r.Health(); h.Status != HealthOK {
		t.Errorf("Health() = %+v, want ok with no sources", h)
	}
}

func TestRouter_Metrics(t *testing.T) {
	r := New("edge-001")
	body := scrape(t, r.Router())
	if !strings.Contains(body, "graylogic_edge_link_wait_seconds") {
		t.Error("router did not serve /metrics")
	}

	rec := httptest.NewRecorder()
	r.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
