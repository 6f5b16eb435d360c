// Package mqtt provides the MQTT 3.1.1 session transport for Gray Logic Edge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions with wildcard support, restored after every reconnect
//   - Translation of paho callbacks into events.Event values
//
// # Architecture
//
// The node subscribes to the broker and logs what arrives. Nothing is
// published. Every paho callback (connect, connection lost, reconnecting,
// inbound PUBLISH) becomes one event handed to the sink supplied at Connect.
//
//	paho goroutines → Transport.emit → events.Sink → events.Bus → Handler
//
// # Subscription identifiers
//
// MQTT 3.1.1 has no Subscription Identifier property. The transport numbers
// subscriptions itself, starting at 1, and reports the same number after a
// reconnect restores the subscription.
//
// # Security Considerations
//
//   - mqtts:// and ssl:// brokers use TLS 1.2 or later with server name checks
//   - Credentials travel in the CONNECT packet, so use TLS off the local segment
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	t := mqtt.New(cfg.MQTT)
//	t.SetLogger(log)
//	client, err := session.Create(ctx, t, opts, bus.Sink(ctx), log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sub, err := client.Subscribe(ctx, session.WildcardAll, 1)
package mqtt
