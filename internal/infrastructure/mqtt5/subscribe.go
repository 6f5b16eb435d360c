package mqtt5

import (
	"context"
	"errors"
	"fmt"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// Subscribe requests a filter and waits for the SUBACK.
//
// The identifier is allocated here, starting at 1. It is sent as the
// Subscription Identifier property when the broker supports it; otherwise
// it stays client-side, as on 3.1.1.
//
// Parameters:
//   - ctx: bounds the wait for the SUBACK
//   - filter: topic filter, wildcards allowed
//   - qos: maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - int: subscription identifier
//   - error: ErrNotConnected, *session.RejectedError, or a wrapped
//     ErrSubscribeFailed
func (t *Transport) Subscribe(ctx context.Context, filter string, qos byte) (int, error) {
	conn := t.current()
	if conn == nil || !t.connected.Load() {
		return 0, ErrNotConnected
	}

	sub := subscription{filter: filter, qos: qos, id: int(t.nextID.Add(1))}

	// Track before sending so a reconnect racing the SUBACK restores it.
	t.subMu.Lock()
	t.subscriptions[filter] = sub
	t.subMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultSubscribeTimeout)
	defer cancel()

	granted, err := subscribe(ctx, conn, sub, t.subIDs.Load())
	if err != nil {
		t.subMu.Lock()
		delete(t.subscriptions, filter)
		t.subMu.Unlock()
		return 0, err
	}

	t.emit(events.Subscribed{ID: sub.id, Filter: filter, GrantedQoS: granted})
	return sub.id, nil
}

// subscribe sends one SUBSCRIBE and interprets the SUBACK reason code.
// paho refuses an identifier the broker has not advertised, so withID
// must follow the last CONNACK.
func subscribe(ctx context.Context, conn connection, sub subscription, withID bool) (byte, error) {
	req := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: sub.filter, QoS: sub.qos},
		},
	}
	if withID {
		id := sub.id
		req.Properties = &paho.SubscribeProperties{SubscriptionIdentifier: &id}
	}
	suback, err := conn.Subscribe(ctx, req)

	// paho reports failure reason codes as an error alongside the SUBACK.
	if suback != nil && len(suback.Reasons) > 0 {
		code := suback.Reasons[0]
		if code >= session.SubackFailure {
			return 0, &session.RejectedError{Filter: sub.filter, Code: code}
		}
		if err == nil {
			return code, nil
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", session.ErrTimeout, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return sub.qos, nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (t *Transport) SubscriptionCount() int {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	return len(t.subscriptions)
}

// HasSubscription checks if a subscription exists for the given filter.
func (t *Transport) HasSubscription(filter string) bool {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	_, exists := t.subscriptions[filter]
	return exists
}
