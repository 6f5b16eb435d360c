// Package mqtt5 provides the MQTT 5 session transport for Gray Logic Edge,
// backed by paho.golang's autopaho connection manager.
//
// It behaves like package mqtt: the node only subscribes, every callback
// becomes an events.Event handed to the sink, and subscriptions survive
// reconnects. The differences are protocol level:
//
//   - Subscription identifiers travel as the v5 Subscription Identifier
//     property, so the broker tags each delivery with the matching id.
//   - SUBACK reason codes of 0x80 and above are reported as
//     *session.RejectedError.
//   - A broker that resumes the session (session present) keeps the
//     subscriptions, so nothing is re-sent after that reconnect.
package mqtt5
