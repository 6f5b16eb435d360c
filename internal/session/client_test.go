package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-edge/internal/events"
)

// fakeTransport records calls and answers from its fields.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	subErr     error
	connected  bool
	closed     bool
	endpoint   Endpoint
	sink       events.Sink
	nextID     int
	subs       []string
}

func (f *fakeTransport) Connect(_ context.Context, ep Endpoint, sink events.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.endpoint = ep
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
	f.nextID++
	f.subs = append(f.subs, filter)
	f.sink(events.Subscribed{ID: f.nextID, Filter: filter, GrantedQoS: qos})
	return f.nextID, nil
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

func collect() (events.Sink, func() []events.Event) {
	var mu sync.Mutex
	var got []events.Event
	return func(ev events.Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		}, func() []events.Event {
			mu.Lock()
			defer mu.Unlock()
			return append([]events.Event(nil), got...)
		}
}

func TestCreate(t *testing.T) {
	ft := &fakeTransport{}
	sink, got := collect()

	c, err := Create(context.Background(), ft, Options{
		BrokerURI: "mqtt://hal.lan",
		Username:  "edge",
		Password:  "secret",
		ClientID:  "edge-001",
	}, sink, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if ft.endpoint.URL.Host != "hal.lan:1883" {
		t.Errorf("host = %q, want hal.lan:1883", ft.endpoint.URL.Host)
	}
	if ft.endpoint.Username != "edge" || ft.endpoint.ClientID != "edge-001" {
		t.Errorf("endpoint = %+v", ft.endpoint)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Create")
	}

	evs := got()
	if len(evs) != 1 || evs[0].Kind() != events.KindConnected {
		t.Errorf("events = %v, want one Connected", evs)
	}
}

func TestCreate_CredentialsFromURI(t *testing.T) {
	ft := &fakeTransport{}
	_, err := Create(context.Background(), ft, Options{BrokerURI: "mqtts://u:p@broker"}, nil, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ft.endpoint.Username != "u" || ft.endpoint.Password != "p" {
		t.Errorf("credentials = %q/%q, want u/p", ft.endpoint.Username, ft.endpoint.Password)
	}
	if strings.Contains(ft.endpoint.String(), "p@") {
		t.Errorf("String() = %q leaks credentials", ft.endpoint.String())
	}
	if !ft.endpoint.TLS() {
		t.Error("TLS() = false for mqtts")
	}
}

func TestCreate_Errors(t *testing.T) {
	connErr := errors.New("connection refused")

	tests := []struct {
		name    string
		uri     string
		connErr error
		wantIs  error
	}{
		{name: "bad scheme", uri: "http://hal.lan", wantIs: ErrInvalidURI},
		{name: "no host", uri: "mqtt://", wantIs: ErrInvalidURI},
		{name: "garbage", uri: "::not a uri", wantIs: ErrInvalidURI},
		{name: "transport fails", uri: "mqtt://hal.lan", connErr: connErr, wantIs: connErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{connectErr: tt.connErr}
			_, err := Create(context.Background(), ft, Options{BrokerURI: tt.uri}, nil, nil)

			var createErr *CreateError
			if !errors.As(err, &createErr) {
				t.Fatalf("error = %v, want *CreateError", err)
			}
			if !errors.Is(err, ErrSessionCreate) {
				t.Errorf("error = %v, want ErrSessionCreate", err)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	ft := &fakeTransport{}
	sink, got := collect()
	c, err := Create(context.Background(), ft, Options{BrokerURI: "mqtt://hal.lan"}, sink, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sub, err := c.Subscribe(context.Background(), WildcardAll, 1)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub.Filter != "#" || sub.QoS != 1 || sub.ID != 1 {
		t.Errorf("Subscription = %+v, want {# 1 1}", sub)
	}
	if len(c.Subscriptions()) != 1 {
		t.Errorf("Subscriptions() = %v", c.Subscriptions())
	}

	evs := got()
	last, ok := evs[len(evs)-1].(events.Subscribed)
	if !ok || last.ID != sub.ID {
		t.Errorf("last event = %v, want Subscribed{ID:%d}", evs[len(evs)-1], sub.ID)
	}
}

func TestSubscribe_Errors(t *testing.T) {
	rejected := &RejectedError{Filter: "#", Code: SubackFailure}

	tests := []struct {
		name   string
		filter string
		qos    byte
		setup  func(*fakeTransport, *Client)
		wantIs error
	}{
		{name: "invalid qos", filter: "#", qos: 3, wantIs: ErrInvalidQoS},
		{name: "invalid filter", filter: "a/#/b", qos: 1, wantIs: ErrInvalidFilter},
		{
			name: "not connected", filter: "#", qos: 1,
			setup:  func(ft *fakeTransport, _ *Client) { ft.connected = false },
			wantIs: ErrNotConnected,
		},
		{
			name: "closed", filter: "#", qos: 1,
			setup:  func(_ *fakeTransport, c *Client) { _ = c.Close() },
			wantIs: ErrClosed,
		},
		{
			name: "broker rejects", filter: "#", qos: 1,
			setup:  func(ft *fakeTransport, _ *Client) { ft.subErr = rejected },
			wantIs: rejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			c, err := Create(context.Background(), ft, Options{BrokerURI: "mqtt://hal.lan"}, nil, nil)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if tt.setup != nil {
				tt.setup(ft, c)
			}

			_, err = c.Subscribe(context.Background(), tt.filter, tt.qos)
			var subErr *SubscribeError
			if !errors.As(err, &subErr) {
				t.Fatalf("error = %v, want *SubscribeError", err)
			}
			if !errors.Is(err, ErrSubscribe) || !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want ErrSubscribe and %v", err, tt.wantIs)
			}
			if len(ft.subs) != 0 {
				t.Errorf("transport saw subscribe %v", ft.subs)
			}
		})
	}
}

func TestClose_Idempotent(t *testing.T) {
	ft := &fakeTransport{}
	c, err := Create(context.Background(), ft, Options{BrokerURI: "tcp://10.0.0.1:1884"}, nil, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if !ft.closed {
		t.Error("transport not closed")
	}
}
