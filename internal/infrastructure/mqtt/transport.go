package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// Transport is a session.Transport over MQTT 3.1.1, backed by
// paho.mqtt.golang.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
//   - Events reach the sink one at a time, in arrival order.
type Transport struct {
	cfg       config.MQTTConfig
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	client pahomqtt.Client
	sink   events.Sink

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex
	nextID        atomic.Int64

	connected atomic.Bool

	// everConnected distinguishes a reconnect from the first connect.
	everConnected atomic.Bool

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex

	// wg tracks resubscribe goroutines so Close can wait for them.
	wg sync.WaitGroup
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

// reconnecting is the raw value of the Other event emitted while paho
// redials the broker.
type reconnecting struct {
	Broker string
}

// New creates an MQTT 3.1.1 transport. Nothing is dialled until Connect.
func New(cfg config.MQTTConfig) *Transport {
	return &Transport{
		cfg:           cfg,
		newClient:     pahomqtt.NewClient,
		subscriptions: make(map[string]subscription),
	}
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (t *Transport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config and the endpoint
//  2. Installs connect, connection-lost and reconnecting handlers that
//     feed the sink
//  3. Waits for the first CONNACK, bounded by ctx and the connect timeout
//
// Parameters:
//   - ctx: bounds the initial connection
//   - ep: validated broker endpoint
//   - sink: receives every session event
//
// Returns:
//   - error: wraps ErrConnectionFailed or ErrTimeout
func (t *Transport) Connect(ctx context.Context, ep session.Endpoint, sink events.Sink) error {
	if t.client != nil {
		return ErrAlreadyConnected
	}

	t.sink = sink
	opts := buildClientOptions(t.cfg, ep)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		t.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		t.emit(events.Other{Name: "reconnecting", Raw: reconnecting{Broker: ep.String()}})
	})

	// Messages for a filter paho has not routed yet (e.g. arriving before
	// the SUBACK after a reconnect) take the same path.
	opts.SetDefaultPublishHandler(t.messageHandler())

	t.client = t.newClient(opts)
	token := t.client.Connect()

	timer := time.NewTimer(defaultConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		t.client.Disconnect(0)
		return fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, defaultConnectTimeout)
	case <-ctx.Done():
		t.client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have run yet.
	t.connected.Store(true)
	return nil
}

// handleConnect is called when the connection is established.
func (t *Transport) handleConnect() {
	t.connected.Store(true)
	t.emit(events.Connected{})

	if t.everConnected.Swap(true) {
		t.restoreSubscriptions()
	}
}

// handleDisconnect is called when the connection is lost.
func (t *Transport) handleDisconnect(err error) {
	t.connected.Store(false)
	t.emit(events.Disconnected{Err: err})
}

// restoreSubscriptions re-subscribes to all tracked filters after reconnect.
// Each confirmation is reported with the subscription's original ID.
func (t *Transport) restoreSubscriptions() {
	t.subMu.RLock()
	subs := make([]subscription, 0, len(t.subscriptions))
	for _, sub := range t.subscriptions {
		subs = append(subs, sub)
	}
	t.subMu.RUnlock()

	for _, sub := range subs {
		token := t.client.Subscribe(sub.filter, sub.qos, t.messageHandler())
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if !token.WaitTimeout(defaultSubscribeTimeout) {
				t.warn("resubscribe timed out", "filter", sub.filter)
				return
			}
			granted, err := subackResult(token, sub.filter)
			if err != nil {
				t.warn("resubscribe failed", "filter", sub.filter, "error", err)
				return
			}
			t.emit(events.Subscribed{ID: sub.id, Filter: sub.filter, GrantedQoS: granted})
		}()
	}
}

// Close gracefully disconnects from the MQTT broker.
//
// Returns:
//   - error: always nil; a connection already closed is not an error
func (t *Transport) Close() error {
	if t.client == nil {
		return nil
	}

	t.client.Disconnect(defaultDisconnectQuiesce)
	t.connected.Store(false)
	t.wg.Wait()
	return nil
}

// IsConnected returns the current connection state.
func (t *Transport) IsConnected() bool {
	return t.client != nil && t.connected.Load() && t.client.IsConnected()
}

// emit hands an event to the sink, recovering from a panicking sink.
func (t *Transport) emit(ev events.Event) {
	if t.sink == nil {
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
	t.sink(ev)
}

func (t *Transport) warn(msg string, args ...any) {
	if logger := t.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

// messageHandler converts inbound PUBLISH packets to Received events.
func (t *Transport) messageHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		t.emit(events.NewReceived(msg.Topic(), msg.Payload(), msg.Qos(), msg.Retained()))
	}
}
