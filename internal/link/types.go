package link

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// State is the link's position in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateStarted
	StateConnecting
	StateAssociated
	StateDisassociated
)

var stateNames = map[State]string{
	StateUninitialized: "uninitialized",
	StateConfigured:    "configured",
	StateStarted:       "started",
	StateConnecting:    "connecting",
	StateAssociated:    "associated",
	StateDisassociated: "disassociated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// AuthMethod is the station authentication scheme.
type AuthMethod string

const (
	AuthOpen    AuthMethod = "open"
	AuthWPA2PSK AuthMethod = "wpa2-psk"
)

// Credentials are the station-mode network credentials.
type Credentials struct {
	SSID     string
	Password string
}

// Auth returns the authentication scheme implied by the password.
func (c Credentials) Auth() AuthMethod {
	if c.Password == "" {
		return AuthOpen
	}
	return AuthWPA2PSK
}

// Configuration is a loggable snapshot of the station configuration.
// It never carries the password.
type Configuration struct {
	SSID        string
	Auth        AuthMethod
	HasPassword bool
	Interface   string
	State       string
}

func (c Configuration) String() string {
	return fmt.Sprintf("Client(ssid=%q auth=%s password_set=%t iface=%s state=%s)",
		c.SSID, c.Auth, c.HasPassword, c.Interface, c.State)
}

// IPInfo describes the addressing of an associated interface.
type IPInfo struct {
	Interface string
	Address   netip.Prefix
	Gateway   netip.Addr
	DNS       []netip.Addr
}

func (i IPInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IpInfo(iface=%s ip=%s", i.Interface, i.Address)
	if i.Gateway.IsValid() {
		fmt.Fprintf(&b, " gw=%s", i.Gateway)
	}
	if len(i.DNS) > 0 {
		dns := make([]string, len(i.DNS))
		for n, a := range i.DNS {
			dns[n] = a.String()
		}
		fmt.Fprintf(&b, " dns=%s", strings.Join(dns, ","))
	}
	b.WriteString(")")
	return b.String()
}

// Driver talks to a wireless interface in station mode.
//
// Implementations need not be safe for concurrent use: the Manager
// serialises calls.
type Driver interface {
	// SetConfiguration stores station credentials.
	SetConfiguration(ctx context.Context, creds Credentials) error

	// Start activates the interface.
	Start(ctx context.Context) error

	// Connect requests association with the configured network.
	Connect(ctx context.Context) error

	// IsConnected reports whether the link layer is associated. It must
	// not block waiting for association.
	IsConnected(ctx context.Context) (bool, error)

	// IPInfo returns the interface addressing, or ErrNotAvailable.
	IPInfo(ctx context.Context) (IPInfo, error)

	// Configuration returns the active configuration snapshot.
	Configuration(ctx context.Context) (Configuration, error)

	// Stop deactivates the interface.
	Stop(ctx context.Context) error
}
