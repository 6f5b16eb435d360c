package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// subackResulter is implemented by *pahomqtt.SubscribeToken.
type subackResulter interface {
	Result() map[string]byte
}

// Subscribe requests a filter and waits for the SUBACK.
//
// MQTT 3.1.1 has no subscription identifier, so the transport assigns a
// sequence number starting at 1. The same number is reported in the
// Subscribed event here and after every reconnect.
//
// Parameters:
//   - ctx: bounds the wait for the SUBACK
//   - filter: topic filter, wildcards allowed
//   - qos: maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - int: subscription identifier
//   - error: ErrNotConnected, ErrTimeout, *session.RejectedError, or a
//     wrapped ErrSubscribeFailed
func (t *Transport) Subscribe(ctx context.Context, filter string, qos byte) (int, error) {
	if !t.IsConnected() {
		return 0, ErrNotConnected
	}

	id := int(t.nextID.Add(1))

	// Track before sending so a reconnect racing the SUBACK restores it.
	t.subMu.Lock()
	t.subscriptions[filter] = subscription{filter: filter, qos: qos, id: id}
	t.subMu.Unlock()

	token := t.client.Subscribe(filter, qos, t.messageHandler())

	forget := func() {
		t.subMu.Lock()
		delete(t.subscriptions, filter)
		t.subMu.Unlock()
	}

	timer := time.NewTimer(defaultSubscribeTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		forget()
		return 0, fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, session.ErrTimeout, defaultSubscribeTimeout)
	case <-ctx.Done():
		forget()
		return 0, fmt.Errorf("%w: %w", ErrSubscribeFailed, ctx.Err())
	}

	granted, err := subackResult(token, filter)
	if err != nil {
		forget()
		return 0, err
	}

	t.emit(events.Subscribed{ID: id, Filter: filter, GrantedQoS: granted})
	return id, nil
}

// subackResult extracts the granted QoS for filter from a completed token.
func subackResult(token pahomqtt.Token, filter string) (byte, error) {
	if err := token.Error(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	res, ok := token.(subackResulter)
	if !ok {
		return 0, nil
	}
	code, ok := res.Result()[filter]
	if !ok {
		return 0, nil
	}
	if code >= session.SubackFailure {
		return 0, &session.RejectedError{Filter: filter, Code: code}
	}
	return code, nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (t *Transport) SubscriptionCount() int {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	return len(t.subscriptions)
}

// HasSubscription checks if a subscription exists for the given filter.
//
// Note: This checks only the exact filter string, not pattern matching.
func (t *Transport) HasSubscription(filter string) bool {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	_, exists := t.subscriptions[filter]
	return exists
}
