package mqtt5

import (
	"crypto/tls"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds each CONNECT attempt and the initial wait.
	defaultConnectTimeout = 10 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for a SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectTimeout bounds the DISCONNECT sent by Close.
	defaultDisconnectTimeout = time.Second

	// defaultKeepAlive is used when the configuration leaves keep_alive at 0.
	defaultKeepAlive = 60

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL returns the endpoint URL in the scheme vocabulary autopaho
// dials (mqtt, mqtts, tcp, ssl, ws, wss are all accepted as is).
func brokerURL(ep session.Endpoint) *url.URL {
	return &url.URL{Scheme: ep.URL.Scheme, Host: ep.URL.Host, Path: ep.URL.Path}
}

// buildClientConfig creates the autopaho configuration for an endpoint.
// Callbacks are installed by Transport.Connect.
func buildClientConfig(cfg config.MQTTConfig, ep session.Endpoint) autopaho.ClientConfig {
	clientID := ep.ClientID
	if clientID == "" {
		clientID = cfg.ClientID
	}

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 || keepAlive > 65535 {
		keepAlive = defaultKeepAlive
	}

	cc := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL(ep)},
		KeepAlive:  uint16(keepAlive),

		// Clean start with no session expiry mirrors the 3.1.1 clean session.
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,

		ConnectTimeout: defaultConnectTimeout,
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
		},
	}

	if ep.Username != "" {
		cc.ConnectUsername = ep.Username
		cc.ConnectPassword = []byte(ep.Password)
	}

	if ep.TLS() {
		cc.TlsCfg = &tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: ep.URL.Hostname(),
		}
	}

	return cc
}
