package session

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Default broker ports by scheme.
var defaultPorts = map[string]string{
	"mqtt":  "1883",
	"tcp":   "1883",
	"mqtts": "8883",
	"ssl":   "8883",
	"ws":    "80",
	"wss":   "443",
}

// Endpoint is a validated broker address with the credentials used to
// open the session.
type Endpoint struct {
	URL      *url.URL
	Username string
	Password string
	ClientID string
}

// TLS reports whether the endpoint needs a TLS connection.
func (e Endpoint) TLS() bool {
	switch e.URL.Scheme {
	case "mqtts", "ssl", "wss":
		return true
	}
	return false
}

// String returns the broker address without credentials.
func (e Endpoint) String() string {
	return e.URL.Redacted()
}

// ParseBrokerURI validates a broker URI and fills in the default port.
//
// Accepted schemes are mqtt, tcp, mqtts, ssl, ws and wss. A host is
// required.
func ParseBrokerURI(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURI, raw)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u, nil
}
