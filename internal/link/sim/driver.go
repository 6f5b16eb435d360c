// Package sim provides a simulated station-mode link driver.
//
// It associates after a fixed number of status polls and hands out a
// static address. Faults can be injected to exercise error paths.
package sim

import (
	"context"
	"errors"
	"net/netip"
	"sync"

	"github.com/nerrad567/gray-logic-edge/internal/link"
)

// ErrInjected is the error returned by injected faults.
var ErrInjected = errors.New("sim: injected fault")

// Config configures the simulated driver.
type Config struct {
	Interface string

	// AssociateAfter is how many IsConnected calls report false before
	// the link associates. 0 associates on the first call.
	AssociateAfter int

	// Address is the prefix reported by IPInfo.
	Address netip.Prefix
	Gateway netip.Addr
}

// Faults selects operations that fail.
type Faults struct {
	RejectConfig bool
	Start        bool
	Connect      bool
	Status       bool
	IPInfo       bool
}

// Driver is an in-memory link.Driver.
type Driver struct {
	cfg Config

	mu         sync.Mutex
	faults     Faults
	creds      link.Credentials
	configured bool
	started    bool
	connecting bool
	associated bool
	polls      int
	connects   int
}

// New creates a simulated driver.
func New(cfg Config) *Driver {
	if cfg.Interface == "" {
		cfg.Interface = "sim0"
	}
	if !cfg.Address.IsValid() {
		cfg.Address = netip.MustParsePrefix("192.168.4.20/24")
	}
	if !cfg.Gateway.IsValid() {
		cfg.Gateway = cfg.Address.Masked().Addr().Next()
	}
	return &Driver{cfg: cfg}
}

// Inject replaces the active fault set.
func (d *Driver) Inject(f Faults) {
	d.mu.Lock()
	d.faults = f
	d.mu.Unlock()
}

// Drop simulates loss of association. The next Connect restarts the
// AssociateAfter countdown.
func (d *Driver) Drop() {
	d.mu.Lock()
	d.associated = false
	d.connecting = false
	d.polls = 0
	d.mu.Unlock()
}

// Polls returns the number of IsConnected calls since the last Connect.
func (d *Driver) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// Connects returns the number of Connect calls.
func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

func (d *Driver) SetConfiguration(_ context.Context, creds link.Credentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faults.RejectConfig {
		return ErrInjected
	}
	d.creds = creds
	d.configured = true
	return nil
}

func (d *Driver) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faults.Start {
		return ErrInjected
	}
	if !d.configured {
		return errors.New("sim: not configured")
	}
	d.started = true
	return nil
}

func (d *Driver) Connect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faults.Connect {
		return ErrInjected
	}
	if !d.started {
		return errors.New("sim: not started")
	}
	d.connects++
	d.connecting = true
	d.polls = 0
	return nil
}

func (d *Driver) IsConnected(_ context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faults.Status {
		return false, ErrInjected
	}
	if d.associated {
		return true, nil
	}
	if !d.connecting {
		return false, nil
	}
	d.polls++
	if d.polls > d.cfg.AssociateAfter {
		d.associated = true
	}
	return d.associated, nil
}

func (d *Driver) IPInfo(_ context.Context) (link.IPInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faults.IPInfo {
		return link.IPInfo{}, ErrInjected
	}
	if !d.associated {
		return link.IPInfo{}, link.ErrNotAvailable
	}
	return link.IPInfo{
		Interface: d.cfg.Interface,
		Address:   d.cfg.Address,
		Gateway:   d.cfg.Gateway,
		DNS:       []netip.Addr{d.cfg.Gateway},
	}, nil
}

func (d *Driver) Configuration(_ context.Context) (link.Configuration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return link.Configuration{
		SSID:        d.creds.SSID,
		Auth:        d.creds.Auth(),
		HasPassword: d.creds.Password != "",
		Interface:   d.cfg.Interface,
	}, nil
}

func (d *Driver) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.connecting = false
	d.associated = false
	return nil
}
