package mqtt

import (
	"crypto/tls"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for a SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when the configuration leaves keep_alive at 0.
	defaultKeepAlive = 60 * time.Second

	// protocolVersion311 is the CONNECT protocol level of MQTT 3.1.1.
	protocolVersion311 = 4

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// pahoScheme maps session URI schemes to the ones paho dials.
var pahoScheme = map[string]string{
	"mqtt":  "tcp",
	"tcp":   "tcp",
	"mqtts": "ssl",
	"ssl":   "ssl",
	"ws":    "ws",
	"wss":   "wss",
}

// brokerURL rewrites the endpoint URL into paho's scheme vocabulary.
func brokerURL(ep session.Endpoint) string {
	scheme := ep.URL.Scheme
	if s, ok := pahoScheme[scheme]; ok {
		scheme = s
	}
	return (&url.URL{Scheme: scheme, Host: ep.URL.Host, Path: ep.URL.Path}).String()
}

// buildClientOptions creates paho MQTT options for an endpoint.
//
// This configures:
//   - Broker URL (tcp, ssl, ws or wss)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff after the first connect
//   - TLS configuration for secure schemes
//   - Clean session mode
//   - In-order message delivery
func buildClientOptions(cfg config.MQTTConfig, ep session.Endpoint) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(ep))

	clientID := ep.ClientID
	if clientID == "" {
		clientID = cfg.ClientID
	}
	opts.SetClientID(clientID)

	if ep.Username != "" {
		opts.SetUsername(ep.Username)
		opts.SetPassword(ep.Password)
	}

	// MQTT 3.1.1 only; paho would otherwise fall back to 3.1.
	opts.SetProtocolVersion(protocolVersion311)

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Auto-reconnect with exponential backoff once connected. The first
	// connect is not retried so a refused CONNACK reaches the caller.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectRetryInterval(cfg.ReconnectInitialDelay())
	opts.SetMaxReconnectInterval(cfg.ReconnectMaxDelay())

	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := cfg.KeepAliveDuration()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Handlers run one at a time in arrival order.
	opts.SetOrderMatters(true)

	if ep.TLS() {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: ep.URL.Hostname(),
		})
	}

	return opts
}
