package events

import (
	"strings"
	"sync/atomic"
)

// TopicNotAvailable is printed in place of a missing topic.
const TopicNotAvailable = "N/A"

// PayloadPolicy decides what happens to messages with an empty payload.
type PayloadPolicy int

const (
	// DropEmptyPayloads silences zero-length payloads. Brokers send them
	// to clear retained messages, so they carry no reading.
	DropEmptyPayloads PayloadPolicy = iota

	// KeepEmptyPayloads reports every message, empty or not.
	KeepEmptyPayloads
)

func (p PayloadPolicy) String() string {
	switch p {
	case DropEmptyPayloads:
		return "drop-empty"
	case KeepEmptyPayloads:
		return "keep-empty"
	default:
		return "unknown"
	}
}

// Notifier receives the handler's output lines.
// *logging.Logger and *slog.Logger both satisfy it.
type Notifier interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Stats counts what the handler has seen. Safe for concurrent reads.
type Stats struct {
	Connects     atomic.Uint64
	Disconnects  atomic.Uint64
	Subscribes   atomic.Uint64
	Received     atomic.Uint64
	DroppedEmpty atomic.Uint64
	Other        atomic.Uint64
}

// Handler classifies events and emits one notification per event.
//
// It keeps no orchestrator state: the only thing it writes besides the
// notifier is its own counters. It must not block.
type Handler struct {
	notify Notifier
	policy PayloadPolicy
	stats  Stats
}

// NewHandler creates a handler writing to notify.
func NewHandler(notify Notifier, policy PayloadPolicy) *Handler {
	return &Handler{
		notify: notify,
		policy: policy,
	}
}

// Stats returns the handler's counters.
func (h *Handler) Stats() *Stats {
	return &h.stats
}

// Policy returns the configured payload policy.
func (h *Handler) Policy() PayloadPolicy {
	return h.policy
}

// Handle dispatches a single event.
func (h *Handler) Handle(ev Event) {
	switch e := ev.(type) {
	case Connected:
		h.stats.Connects.Add(1)
		h.notify.Info("connected to broker", "session_present", e.SessionPresent)

	case Subscribed:
		h.stats.Subscribes.Add(1)
		h.notify.Info("subscription confirmed", "id", e.ID, "filter", e.Filter, "granted_qos", e.GrantedQoS)

	case Received:
		if len(e.Payload) == 0 && h.policy == DropEmptyPayloads {
			h.stats.DroppedEmpty.Add(1)
			return
		}
		h.stats.Received.Add(1)
		h.notify.Info("message received",
			"payload", DecodePayload(e.Payload),
			"topic", TopicOrSentinel(e),
		)

	case Disconnected:
		h.stats.Disconnects.Add(1)
		h.notify.Warn("disconnected from broker", "error", e.Err)

	default:
		h.stats.Other.Add(1)
		h.notify.Debug("session event", "kind", ev.Kind(), "event", describe(ev))
	}
}

// DecodePayload decodes payload as UTF-8, replacing invalid sequences
// with U+FFFD.
func DecodePayload(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "\uFFFD")
}

// TopicOrSentinel returns the message topic, or TopicNotAvailable.
func TopicOrSentinel(e Received) string {
	if !e.HasTopic {
		return TopicNotAvailable
	}
	return e.Topic
}

func describe(ev Event) string {
	if o, ok := ev.(Other); ok {
		return o.String()
	}
	return string(ev.Kind())
}
