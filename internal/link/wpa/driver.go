// Package wpa drives a Linux wireless interface through wpa_supplicant.
//
// In managed mode the driver writes the supplicant configuration, runs
// wpa_supplicant under a process.Supervisor and talks to it over its
// control socket with wpa_cli. In unmanaged mode an already running
// supplicant is reconfigured through the same control socket.
package wpa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/gray-logic-edge/internal/link"
	"github.com/nerrad567/gray-logic-edge/internal/process"
)

// supplicantConfigError is the exit status wpa_supplicant uses when it
// cannot parse its configuration.
const supplicantConfigError = 255

// Config configures the driver.
type Config struct {
	Interface        string
	SupplicantBinary string
	CLIBinary        string
	StateDir         string
	CtrlDir          string
	Managed          bool

	// Drivers is passed to wpa_supplicant -D.
	Drivers string

	// SocketWait bounds how long Start waits for the control socket.
	SocketWait time.Duration

	RouteFile  string
	ResolvFile string

	// Runner and Lookup replace command execution and interface
	// address lookup. nil uses the real system.
	Runner Runner
	Lookup AddrLookup
}

// Logger defines the logging interface for the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Driver is a link.Driver backed by wpa_supplicant.
type Driver struct {
	cfg    Config
	cli    cli
	lookup AddrLookup
	logger Logger

	mu       sync.Mutex
	creds    link.Credentials
	fields   [][2]string
	confPath string
	sup      *process.Supervisor
}

// New creates a wpa_supplicant driver.
func New(cfg Config) *Driver {
	if cfg.Interface == "" {
		cfg.Interface = "wlan0"
	}
	if cfg.SupplicantBinary == "" {
		cfg.SupplicantBinary = "/usr/sbin/wpa_supplicant"
	}
	if cfg.CLIBinary == "" {
		cfg.CLIBinary = "/usr/sbin/wpa_cli"
	}
	if cfg.CtrlDir == "" {
		cfg.CtrlDir = "/run/wpa_supplicant"
	}
	if cfg.Drivers == "" {
		cfg.Drivers = "nl80211,wext"
	}
	if cfg.SocketWait == 0 {
		cfg.SocketWait = 10 * time.Second
	}
	if cfg.RouteFile == "" {
		cfg.RouteFile = DefaultRouteFile
	}
	if cfg.ResolvFile == "" {
		cfg.ResolvFile = DefaultResolvFile
	}

	runner := cfg.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	lookup := cfg.Lookup
	if lookup == nil {
		lookup = interfaceAddrs
	}

	return &Driver{
		cfg: cfg,
		cli: cli{
			runner:  runner,
			binary:  cfg.CLIBinary,
			ctrlDir: cfg.CtrlDir,
			iface:   cfg.Interface,
		},
		lookup: lookup,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the driver and its supervisor.
func (d *Driver) SetLogger(logger Logger) {
	d.logger = logger
}

// SetConfiguration renders the network block. In managed mode the
// configuration file is written here so a bad state dir fails early.
func (d *Driver) SetConfiguration(_ context.Context, creds link.Credentials) error {
	fields, err := networkFields(creds)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.Managed {
		content, err := renderConf(d.cfg.CtrlDir, creds)
		if err != nil {
			return err
		}
		path, err := writeConf(d.cfg.StateDir, content)
		if err != nil {
			return err
		}
		d.confPath = path
		d.logger.Debug("supplicant configuration written", "path", path)
	}

	d.creds = creds
	d.fields = fields
	return nil
}

// Start brings up the supplicant and waits for its control socket.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fields == nil {
		return ErrNotConfigured
	}

	if d.cfg.Managed && d.sup == nil {
		sup := process.NewSupervisor(d.supervisorConfig())
		sup.SetLogger(d.logger)
		if err := sup.Start(ctx); err != nil {
			return err
		}
		d.sup = sup
	}

	if err := d.awaitSocket(ctx); err != nil {
		return err
	}

	if !d.cfg.Managed {
		if err := d.cli.addNetwork(ctx, d.fields); err != nil {
			return fmt.Errorf("configuring supplicant: %w", err)
		}
	}
	return nil
}

func (d *Driver) supervisorConfig() process.Config {
	cfg := process.DefaultConfig("wpa_supplicant", d.cfg.SupplicantBinary, []string{
		"-i", d.cfg.Interface,
		"-c", d.confPath,
		"-D", d.cfg.Drivers,
	})
	cfg.PermanentExitCodes = []int{supplicantConfigError}
	cfg.HealthCheckFunc = d.cli.ping
	return cfg
}

// awaitSocket polls the control socket until it answers PONG.
func (d *Driver) awaitSocket(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.cli.ping(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(d.cfg.SocketWait),
	)
	return err
}

// Connect asks the supplicant to (re)associate.
func (d *Driver) Connect(ctx context.Context) error {
	return d.cli.expect(ctx, "OK", "reconnect")
}

// IsConnected reports whether the supplicant has completed association.
func (d *Driver) IsConnected(ctx context.Context) (bool, error) {
	status, err := d.cli.status(ctx)
	if err != nil {
		return false, err
	}
	return status["wpa_state"] == "COMPLETED", nil
}

// IPInfo returns the interface addressing once an address is assigned.
func (d *Driver) IPInfo(ctx context.Context) (link.IPInfo, error) {
	status, err := d.cli.status(ctx)
	if err != nil {
		return link.IPInfo{}, err
	}
	return d.ipInfo(status)
}

// Configuration returns the station configuration snapshot.
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

// Stop disconnects and, in managed mode, stops the supplicant.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	sup := d.sup
	d.sup = nil
	d.mu.Unlock()

	if sup == nil {
		return d.cli.expect(ctx, "OK", "disconnect")
	}
	return sup.Stop()
}

// SupervisorStats reports the managed supplicant, if any.
func (d *Driver) SupervisorStats() (process.Stats, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sup == nil {
		return process.Stats{}, false
	}
	return d.sup.Stats(), true
}
