// Package session owns the broker session of an edge node.
//
// A Client is opened with Create over a Transport. Two transports exist:
// infrastructure/mqtt speaks MQTT 3.1.1 through paho.mqtt.golang and
// infrastructure/mqtt5 speaks MQTT 5 through paho.golang. Both turn
// library callbacks into events.Event values and reconnect on their own,
// re-issuing subscriptions each time.
//
// # Errors
//
// Create fails with *CreateError (errors.Is(err, ErrSessionCreate)).
// Subscribe fails with *SubscribeError (errors.Is(err, ErrSubscribe)),
// which wraps the cause: ErrNotConnected, ErrInvalidFilter,
// ErrInvalidQoS, ErrTimeout or a *RejectedError from the broker.
//
// # Broker URIs
//
//	mqtt://host[:1883]   tcp://host[:1883]
//	mqtts://host[:8883]  ssl://host[:8883]
//	ws://host[:80]/path  wss://host[:443]/path
package session
