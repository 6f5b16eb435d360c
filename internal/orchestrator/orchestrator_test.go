package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/link"
	"github.com/nerrad567/gray-logic-edge/internal/link/sim"
	"github.com/nerrad567/gray-logic-edge/internal/metrics"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeTransport is a session.Transport that accepts everything unless told
// otherwise. Subscribe delivers any queued messages after the SUBACK.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	subErr     error
	connected  bool
	closed     bool
	connects   int
	sink       events.Sink
	subs       []string
	qos        []byte
	deliver    []events.Received
}

func (f *fakeTransport) Connect(_ context.Context, _ session.Endpoint, sink events.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.sink = sink
	f.connected = true
	sink(events.Connected{})
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, filter string, qos byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return 0, f.subErr
	}
	f.subs = append(f.subs, filter)
	f.qos = append(f.qos, qos)
	id := len(f.subs)
	f.sink(events.Subscribed{ID: id, Filter: filter, GrantedQoS: qos})
	for _, msg := range f.deliver {
		f.sink(msg)
	}
	return id, nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeTransport) snapshot() (connects int, subs []string, qos []byte, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, append([]string(nil), f.subs...), append([]byte(nil), f.qos...), f.closed
}

// sampleRecorder is a SampleWriter.
type sampleRecorder struct {
	mu      sync.Mutex
	samples []influxdb.LinkSample
}

func (r *sampleRecorder) WriteLinkSample(s influxdb.LinkSample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *sampleRecorder) first() (influxdb.LinkSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return influxdb.LinkSample{}, false
	}
	return r.samples[0], true
}

// syncBuffer is a goroutine-safe log destination.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// countingSleep returns immediately and counts calls.
type countingSleep struct {
	n atomic.Int32
}

func (c *countingSleep) sleep(ctx context.Context, _ time.Duration) error {
	c.n.Add(1)
	return ctx.Err()
}

// =============================================================================
// Helpers
// =============================================================================

type harness struct {
	cfg       *config.Config
	driver    *sim.Driver
	link      *link.Manager
	transport *fakeTransport
	handler   *events.Handler
	logs      *syncBuffer
	samples   *sampleRecorder
	sleeps    *countingSleep
	rt        *Runtime
}

func testConfig() *config.Config {
	return &config.Config{
		Node: config.NodeConfig{ID: "edge-test"},
		WiFi: config.WiFiConfig{
			Driver:           "sim",
			Interface:        "sim0",
			SSID:             "HAL",
			Password:         "correct-horse",
			PollInterval:     time.Millisecond,
			AssociateTimeout: 5 * time.Second,
		},
		MQTT: config.MQTTConfig{
			Broker:   "mqtt://hal.lan",
			ClientID: "edge-test",
			Protocol: "3.1.1",
		},
		Events:  config.EventsConfig{DropEmptyPayloads: true, BufferSize: 16},
		Monitor: config.MonitorConfig{Interval: time.Hour},
		Logging: config.LoggingConfig{Level: "debug"},
	}
}

func newHarness(t *testing.T, associateAfter int) *harness {
	t.Helper()
	h := &harness{
		cfg:       testConfig(),
		driver:    sim.New(sim.Config{Interface: "sim0", AssociateAfter: associateAfter}),
		transport: &fakeTransport{},
		logs:      &syncBuffer{},
		samples:   &sampleRecorder{},
		sleeps:    &countingSleep{},
	}
	h.link = link.NewManager(h.driver)
	log := logging.NewWithWriter(h.logs, h.cfg.Logging, "test")
	h.handler = events.NewHandler(log, events.DropEmptyPayloads)
	h.rt = &Runtime{
		Config:    h.cfg,
		Logger:    log,
		Link:      h.link,
		Transport: h.transport,
		Handler:   h.handler,
		Telemetry: h.samples,
		Sleep:     h.sleeps.sleep,
	}
	return h
}

// start runs the orchestrator and returns a channel that yields Run's
// result, plus a channel closed when the state reaches Monitoring.
func start(ctx context.Context, t *testing.T, o *Orchestrator) (<-chan error, <-chan struct{}) {
	t.Helper()
	monitoring := make(chan struct{})
	var once sync.Once
	o.stateHook = func(s State) {
		if s == StateMonitoring {
			once.Do(func() { close(monitoring) })
		}
	}
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	return done, monitoring
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

func wantStage(t *testing.T, err error, stage State) {
	t.Helper()
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("Run() error = %v, want *StageError", err)
	}
	if se.Stage != stage {
		t.Errorf("StageError.Stage = %v, want %v", se.Stage, stage)
	}
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_IncompleteRuntime(t *testing.T) {
	tests := []struct {
		name string
		edit func(rt *Runtime)
	}{
		{"no config", func(rt *Runtime) { rt.Config = nil }},
		{"no link", func(rt *Runtime) { rt.Link = nil }},
		{"no transport", func(rt *Runtime) { rt.Transport = nil }},
		{"no handler", func(rt *Runtime) { rt.Handler = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			tt.edit(h.rt)
			if _, err := New(h.rt); !errors.Is(err, ErrRuntime) {
				t.Errorf("New() error = %v, want ErrRuntime", err)
			}
		})
	}

	if _, err := New(nil); !errors.Is(err, ErrRuntime) {
		t.Errorf("New(nil) error = %v, want ErrRuntime", err)
	}
}

func TestState_String(t *testing.T) {
	if got := StateMonitoring.String(); got != "monitoring" {
		t.Errorf("StateMonitoring.String() = %q, want monitoring", got)
	}
	if got := State(99).String(); got != "state(99)" {
		t.Errorf("State(99).String() = %q, want state(99)", got)
	}
}

// =============================================================================
// Startup Sequence Tests
// =============================================================================

func TestRun_StartupSequence(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, 2)
	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var mu sync.Mutex
	var seen []State
	monitoring := make(chan struct{})
	o.stateHook = func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		if s == StateMonitoring {
			close(monitoring)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case <-monitoring:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("never reached monitoring")
	}
	waitFor(t, "first monitor tick", func() bool { return o.MonitorTicks() >= 1 })

	// Associates on the third query: three queries, two sleeps.
	if got := h.driver.Polls(); got != 3 {
		t.Errorf("status queries = %d, want 3", got)
	}
	if got := h.sleeps.n.Load(); got != 2 {
		t.Errorf("sleeps = %d, want 2", got)
	}

	connects, subs, qos, _ := h.transport.snapshot()
	if connects != 1 {
		t.Errorf("transport connects = %d, want 1", connects)
	}
	if len(subs) != 1 || subs[0] != "#" || qos[0] != 1 {
		t.Errorf("subscriptions = %v qos %v, want [#] qos [1]", subs, qos)
	}
	if sub := o.Subscription(); sub.Filter != "#" || sub.ID != 1 {
		t.Errorf("Subscription() = %+v, want filter # id 1", sub)
	}
	if o.Session() == nil || !o.sessionConnected() {
		t.Error("session not connected during monitoring")
	}

	logs := h.logs.String()
	for _, want := range []string{"waiting for link", `Client(ssid=\"HAL\"`, "ip info", "IpInfo(iface=sim0 ip=192.168.4.20/24"} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q", want)
		}
	}
	if strings.Contains(logs, "correct-horse") {
		t.Error("logs contain the wifi password")
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run() error = %v, want nil after cancel", err)
	}

	if o.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", o.State())
	}
	if _, _, _, closed := h.transport.snapshot(); !closed {
		t.Error("transport not closed on shutdown")
	}
	if got := h.link.State(); got != link.StateConfigured {
		t.Errorf("link state = %v, want configured after stop", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{
		StateInit, StateLinkConfiguring, StateLinkConnecting, StateLinkAssociated,
		StateSessionEstablishing, StateSubscribing, StateMonitoring, StateStopped,
	}
	if len(seen) != len(want) {
		t.Fatalf("states = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestRun_ConfigureFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.cfg.WiFi.SSID = ""

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = o.Run(context.Background())
	wantStage(t, err, StateLinkConfiguring)
	if !errors.Is(err, link.ErrConfig) {
		t.Errorf("Run() error = %v, want link.ErrConfig", err)
	}
	if o.State() != StateFailed {
		t.Errorf("State() = %v, want failed", o.State())
	}
	if connects, _, _, _ := h.transport.snapshot(); connects != 0 {
		t.Errorf("transport connects = %d, want 0", connects)
	}
	if h.driver.Polls() != 0 {
		t.Error("link was polled after a configure failure")
	}
}

func TestRun_StartFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.driver.Inject(sim.Faults{Start: true})

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = o.Run(context.Background())
	wantStage(t, err, StateLinkConfiguring)
	if !errors.Is(err, link.ErrStart) {
		t.Errorf("Run() error = %v, want link.ErrStart", err)
	}
}

func TestRun_LinkTimeout(t *testing.T) {
	h := newHarness(t, 1_000_000)
	h.cfg.WiFi.AssociateTimeout = 50 * time.Millisecond
	h.cfg.WiFi.PollInterval = 5 * time.Millisecond
	h.rt.Sleep = nil

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = o.Run(context.Background())
	wantStage(t, err, StateLinkConnecting)
	if !errors.Is(err, ErrLinkTimeout) {
		t.Errorf("Run() error = %v, want ErrLinkTimeout", err)
	}
	if connects, _, _, _ := h.transport.snapshot(); connects != 0 {
		t.Errorf("transport connects = %d, want 0", connects)
	}
	if h.link.State() != link.StateConfigured {
		t.Errorf("link state = %v, want configured after stop", h.link.State())
	}
}

func TestRun_StatusErrorsCountAsNotYet(t *testing.T) {
	h := newHarness(t, 0)
	h.driver.Inject(sim.Faults{Status: true})
	h.cfg.WiFi.AssociateTimeout = 50 * time.Millisecond
	h.rt.Sleep = nil

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = o.Run(context.Background())
	if !errors.Is(err, ErrLinkTimeout) {
		t.Errorf("Run() error = %v, want ErrLinkTimeout", err)
	}
	if !strings.Contains(h.logs.String(), "link status query failed") {
		t.Error("status failures were not logged")
	}
}

func TestRun_SessionFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.transport.connectErr = errors.New("connection refused")

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = o.Run(context.Background())
	wantStage(t, err, StateSessionEstablishing)
	if !errors.Is(err, session.ErrSessionCreate) {
		t.Errorf("Run() error = %v, want session.ErrSessionCreate", err)
	}
	if _, subs, _, _ := h.transport.snapshot(); len(subs) != 0 {
		t.Errorf("subscriptions = %v, want none", subs)
	}
}

func TestRun_InvalidBroker(t *testing.T) {
	h := newHarness(t, 0)
	h.cfg.MQTT.Broker = "ftp://hal.lan"

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = o.Run(context.Background())
	wantStage(t, err, StateSessionEstablishing)
	if connects, _, _, _ := h.transport.snapshot(); connects != 0 {
		t.Errorf("transport connects = %d, want 0", connects)
	}
}

func TestRun_SubscribeRejected(t *testing.T) {
	h := newHarness(t, 0)
	h.transport.subErr = &session.RejectedError{Filter: "#", Code: session.SubackFailure}

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = o.Run(context.Background())
	wantStage(t, err, StateSubscribing)
	var rejected *session.RejectedError
	if !errors.As(err, &rejected) {
		t.Errorf("Run() error = %v, want *session.RejectedError", err)
	}
	if _, _, _, closed := h.transport.snapshot(); !closed {
		t.Error("session not closed after subscribe failure")
	}
}

func TestRun_CancelDuringLinkWait(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, 1_000_000)
	h.cfg.WiFi.AssociateTimeout = 0
	h.cfg.WiFi.PollInterval = 5 * time.Millisecond
	h.rt.Sleep = nil

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, _ := start(ctx, t, o)

	waitFor(t, "link polling", func() bool { return h.driver.Polls() >= 3 })
	cancel()

	if err := waitDone(t, done); err != nil {
		t.Errorf("Run() error = %v, want nil on shutdown", err)
	}
	if o.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", o.State())
	}
}

// =============================================================================
// Monitoring Tests
// =============================================================================

func TestRun_EventsReachHandler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, 0)
	h.transport.deliver = []events.Received{
		events.NewReceived("hal/kitchen/temp", []byte("21.5"), 1, false),
		events.NewReceived("hal/kitchen/old", nil, 1, true),
	}

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, monitoring := start(ctx, t, o)
	<-monitoring

	stats := h.handler.Stats()
	waitFor(t, "events handled", func() bool {
		return stats.Received.Load() == 1 && stats.DroppedEmpty.Load() == 1
	})
	if stats.Connects.Load() != 1 || stats.Subscribes.Load() != 1 {
		t.Errorf("connects = %d subscribes = %d, want 1 and 1", stats.Connects.Load(), stats.Subscribes.Load())
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(h.logs.String(), "hal/kitchen/temp") {
		t.Error("received message not logged")
	}
}

func TestRun_Telemetry(t *testing.T) {
	h := newHarness(t, 0)

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, monitoring := start(ctx, t, o)
	<-monitoring
	waitFor(t, "first sample", func() bool { _, ok := h.samples.first(); return ok })

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	s, _ := h.samples.first()
	if s.Interface != "sim0" || s.State != "associated" {
		t.Errorf("sample = %+v, want sim0 associated", s)
	}
	if s.Address != "192.168.4.20/24" || s.Gateway != "192.168.4.1" {
		t.Errorf("sample address = %q gw %q", s.Address, s.Gateway)
	}
	if !s.SessionConnected {
		t.Error("sample reports session disconnected")
	}
}

func TestRun_MonitorKeepsReporting(t *testing.T) {
	h := newHarness(t, 0)
	h.cfg.Monitor.Interval = 10 * time.Millisecond
	h.cfg.WiFi.Reassociate = false

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, monitoring := start(ctx, t, o)
	<-monitoring
	waitFor(t, "several ticks", func() bool { return o.MonitorTicks() >= 3 })

	// Without a supervisor a lost link is only reported.
	h.driver.Drop()
	waitFor(t, "link loss noticed", func() bool { return h.link.State() == link.StateDisassociated })
	waitFor(t, "warning", func() bool { return strings.Contains(h.logs.String(), "ip info unavailable") })

	if o.State() != StateMonitoring {
		t.Errorf("State() = %v, want monitoring", o.State())
	}
	if h.driver.Connects() != 1 {
		t.Errorf("driver connects = %d, want 1", h.driver.Connects())
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRun_Reassociates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, 1)
	h.cfg.Monitor.Interval = 10 * time.Millisecond
	h.cfg.WiFi.Reassociate = true
	reg := metrics.New("edge-test")
	h.rt.Metrics = reg

	o, err := New(h.rt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, monitoring := start(ctx, t, o)
	<-monitoring

	h.driver.Drop()
	waitFor(t, "reassociation", func() bool {
		return h.driver.Connects() >= 2 && h.link.State() == link.StateAssociated && o.State() == StateMonitoring
	})
	waitFor(t, "reassociation log", func() bool { return strings.Contains(h.logs.String(), "link reassociated") })

	mfs, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "graylogic_edge_link_reassociations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == metrics.OutcomeAssociated && m.GetCounter().GetValue() >= 1 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("reassociation outcome not recorded")
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
