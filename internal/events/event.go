package events

import "fmt"

// Kind classifies an inbound session event.
type Kind string

const (
	KindConnected    Kind = "connected"
	KindSubscribed   Kind = "subscribed"
	KindReceived     Kind = "received"
	KindDisconnected Kind = "disconnected"
	KindOther        Kind = "other"
)

// Event is a transient protocol event produced by a session transport.
// The set of implementations is closed: Connected, Subscribed, Received,
// Disconnected and Other.
type Event interface {
	Kind() Kind
	isEvent()
}

// Connected reports that the broker accepted the session (CONNACK).
type Connected struct {
	// SessionPresent is the broker's session-present flag.
	SessionPresent bool
}

// Subscribed reports a subscription acknowledgement (SUBACK).
type Subscribed struct {
	ID     int
	Filter string
	// GrantedQoS is the QoS the broker granted.
	GrantedQoS byte
}

// Received carries an inbound PUBLISH.
type Received struct {
	// Topic is only meaningful when HasTopic is true. Some transports
	// deliver fragments or aliased publishes without a topic.
	Topic    string
	HasTopic bool
	Payload  []byte
	QoS      byte
	Retained bool
}

// Disconnected reports loss of the broker connection.
type Disconnected struct {
	Err error
}

// Other wraps any protocol event without a dedicated case.
type Other struct {
	Name string
	Raw  any
}

func (Connected) Kind() Kind    { return KindConnected }
func (Subscribed) Kind() Kind   { return KindSubscribed }
func (Received) Kind() Kind     { return KindReceived }
func (Disconnected) Kind() Kind { return KindDisconnected }
func (Other) Kind() Kind        { return KindOther }

func (Connected) isEvent()    {}
func (Subscribed) isEvent()   {}
func (Received) isEvent()     {}
func (Disconnected) isEvent() {}
func (Other) isEvent()        {}

// String renders the raw structure for debug output.
func (o Other) String() string {
	return fmt.Sprintf("%s: %+v", o.Name, o.Raw)
}

// NewReceived builds a Received event for a topic that is always present.
func NewReceived(topic string, payload []byte, qos byte, retained bool) Received {
	return Received{
		Topic:    topic,
		HasTopic: topic != "",
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	}
}
