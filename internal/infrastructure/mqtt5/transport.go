package mqtt5

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// connection is the part of *autopaho.ConnectionManager the transport uses.
type connection interface {
	AwaitConnection(ctx context.Context) error
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Disconnect(ctx context.Context) error
}

// dialFunc starts a connection manager. It returns once the manager runs,
// not once the broker has answered.
type dialFunc func(ctx context.Context, cfg autopaho.ClientConfig) (connection, error)

func dialAutopaho(ctx context.Context, cfg autopaho.ClientConfig) (connection, error) {
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	filter string
	qos    byte
	id     int
}

// connectError is the raw value of the Other event emitted for each failed
// connection attempt.
type connectError struct {
	Broker string
	Err    error
}

// Transport is a session.Transport over MQTT 5.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored on reconnection unless the broker kept them.
type Transport struct {
	cfg  config.MQTTConfig
	dial dialFunc

	mu     sync.RWMutex
	conn   connection
	stop   context.CancelFunc
	sink   events.Sink
	logger Logger

	// abortInitial ends the wait for the first CONNACK; nil once it is over.
	abortInitial context.CancelCauseFunc

	subscriptions map[string]subscription
	subMu         sync.RWMutex
	nextID        atomic.Int64

	connected     atomic.Bool
	everConnected atomic.Bool

	// subIDs is false when the last CONNACK said the broker does not
	// support Subscription Identifiers.
	subIDs atomic.Bool
}

// New creates an MQTT 5 transport. Nothing is dialled until Connect.
func New(cfg config.MQTTConfig) *Transport {
	return &Transport{
		cfg:           cfg,
		dial:          dialAutopaho,
		subscriptions: make(map[string]subscription),
	}
}

// SetLogger sets a logger for error and panic logging.
func (t *Transport) SetLogger(logger Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

func (t *Transport) getLogger() Logger {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.logger
}

func (t *Transport) current() connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn
}

// Connect starts the connection manager and waits for the first CONNACK.
// A failed first attempt, such as a refused CONNACK, ends the wait with
// that error.
//
// The manager outlives ctx: it keeps reconnecting in the background until
// Close. ctx only bounds the initial wait.
//
// Parameters:
//   - ctx: bounds the initial connection
//   - ep: validated broker endpoint
//   - sink: receives every session event
//
// Returns:
//   - error: wraps ErrConnectionFailed
func (t *Transport) Connect(ctx context.Context, ep session.Endpoint, sink events.Sink) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.sink = sink
	t.mu.Unlock()

	cc := buildClientConfig(t.cfg, ep)
	cc.OnConnectionUp = func(_ *autopaho.ConnectionManager, connack *paho.Connack) {
		t.handleUp(connack)
	}
	cc.OnConnectError = func(err error) {
		t.emit(events.Other{Name: "connect-error", Raw: connectError{Broker: ep.String(), Err: err}})
		t.failInitial(err)
	}
	cc.ClientConfig.OnClientError = func(err error) {
		t.handleDown(err)
	}
	cc.ClientConfig.OnServerDisconnect = func(d *paho.Disconnect) {
		t.handleDown(fmt.Errorf("server disconnect, reason code 0x%02x", d.ReasonCode))
	}
	cc.ClientConfig.OnPublishReceived = []func(paho.PublishReceived) (bool, error){
		func(pr paho.PublishReceived) (bool, error) {
			t.handlePublish(pr.Packet)
			return true, nil
		},
	}

	// Armed before dialling: autopaho may fail its first attempt at once.
	initCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	t.mu.Lock()
	t.abortInitial = abort
	t.mu.Unlock()

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	conn, err := t.dial(runCtx, cc)
	if err != nil {
		stop()
		t.mu.Lock()
		t.abortInitial = nil
		t.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.stop = stop
	t.mu.Unlock()

	awaitCtx, cancel := context.WithTimeout(initCtx, defaultConnectTimeout)
	defer cancel()
	err = conn.AwaitConnection(awaitCtx)

	t.mu.Lock()
	t.abortInitial = nil
	t.mu.Unlock()

	if err != nil {
		t.shutdown()
		switch cause := context.Cause(initCtx); {
		case ctx.Err() != nil:
		case cause != nil:
			// The first attempt failed; autopaho would keep retrying it.
			err = cause
		case errors.Is(err, context.DeadlineExceeded):
			err = fmt.Errorf("%w after %v", session.ErrTimeout, defaultConnectTimeout)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.connected.Store(true)
	return nil
}

// failInitial aborts Connect's wait with err. Later failures are left to
// autopaho's reconnect loop.
func (t *Transport) failInitial(err error) {
	t.mu.RLock()
	abort := t.abortInitial
	t.mu.RUnlock()
	if abort != nil {
		abort(err)
	}
}

// handleUp runs after every CONNACK.
func (t *Transport) handleUp(connack *paho.Connack) {
	present := connack != nil && connack.SessionPresent
	t.subIDs.Store(subIDAvailable(connack))
	t.connected.Store(true)
	t.emit(events.Connected{SessionPresent: present})

	if t.everConnected.Swap(true) && !present {
		t.restoreSubscriptions()
	}
}

// subIDAvailable reads the CONNACK property. An absent property means the
// broker supports identifiers.
func subIDAvailable(connack *paho.Connack) bool {
	if connack == nil || connack.Properties == nil {
		return true
	}
	return connack.Properties.SubIDAvailable
}

// handleDown reports a lost connection once per outage.
func (t *Transport) handleDown(err error) {
	if t.connected.Swap(false) {
		t.emit(events.Disconnected{Err: err})
	}
}

// handlePublish converts an inbound PUBLISH to a Received event. A publish
// using only a topic alias arrives with an empty topic.
func (t *Transport) handlePublish(p *paho.Publish) {
	if p == nil {
		return
	}
	t.emit(events.NewReceived(p.Topic, p.Payload, p.QoS, p.Retain))
}

// restoreSubscriptions re-subscribes to all tracked filters after reconnect.
// autopaho calls OnConnectionUp on its own goroutine, so this may block.
func (t *Transport) restoreSubscriptions() {
	conn := t.current()
	if conn == nil {
		return
	}

	t.subMu.RLock()
	subs := make([]subscription, 0, len(t.subscriptions))
	for _, sub := range t.subscriptions {
		subs = append(subs, sub)
	}
	t.subMu.RUnlock()

	for _, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSubscribeTimeout)
		granted, err := subscribe(ctx, conn, sub, t.subIDs.Load())
		cancel()
		if err != nil {
			t.warn("resubscribe failed", "filter", sub.filter, "error", err)
			continue
		}
		t.emit(events.Subscribed{ID: sub.id, Filter: sub.filter, GrantedQoS: granted})
	}
}

// Close disconnects from the broker and stops the connection manager.
//
// Returns:
//   - error: always nil; a connection already closed is not an error
func (t *Transport) Close() error {
	t.shutdown()
	return nil
}

func (t *Transport) shutdown() {
	t.mu.Lock()
	conn, stop := t.conn, t.stop
	t.stop = nil
	t.mu.Unlock()

	if stop == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDisconnectTimeout)
	defer cancel()
	// Disconnect fails when the link is already down; stopping the manager
	// is what matters.
	_ = conn.Disconnect(ctx)
	stop()
	t.connected.Store(false)
}

// IsConnected returns the current connection state.
func (t *Transport) IsConnected() bool {
	return t.current() != nil && t.connected.Load()
}

// emit hands an event to the sink, recovering from a panicking sink.
func (t *Transport) emit(ev events.Event) {
	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if logger := t.getLogger(); logger != nil {
				logger.Error("MQTT event sink panic recovered",
					"kind", ev.Kind(),
					"panic", r,
				)
			}
		}
	}()
	sink(ev)
}

func (t *Transport) warn(msg string, args ...any) {
	if logger := t.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}
