package session

import (
	"context"

	"github.com/nerrad567/gray-logic-edge/internal/events"
)

// Transport is a broker connection driven by an MQTT library.
//
// Implementations translate library callbacks into events.Event values
// and hand them to the sink passed to Connect. They reconnect on their
// own and re-issue every subscription after a reconnect.
type Transport interface {
	// Connect opens the session. It returns once the broker has accepted
	// the connection or ctx ends.
	Connect(ctx context.Context, endpoint Endpoint, sink events.Sink) error

	// Subscribe requests filter at qos and waits for the acknowledgement.
	// It returns the subscription identifier reported in the
	// Subscribed event. A broker refusal is a *RejectedError.
	Subscribe(ctx context.Context, filter string, qos byte) (int, error)

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close disconnects gracefully.
	Close() error
}
