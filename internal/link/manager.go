package link

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
)

// Logger defines the logging interface for the link manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Manager drives a Driver from Uninitialized to Associated and answers
// status queries.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Driver calls are serialised.
type Manager struct {
	driver Driver
	logger Logger

	mu    sync.Mutex
	state State
	creds Credentials
}

// NewManager creates a link manager around driver.
func NewManager(driver Driver) *Manager {
	return &Manager{
		driver: driver,
		logger: noopLogger{},
		state:  StateUninitialized,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Configure validates and applies station credentials.
//
// The SSID must be 1 to 32 bytes and the password at most 64 bytes.
// Anything longer fails with *ConfigError before the driver is touched.
// Rules of the security mode itself belong to the driver; its rejection
// also surfaces as *ConfigError.
func (m *Manager) Configure(ctx context.Context, ssid, password string) error {
	creds := Credentials{SSID: ssid, Password: password}
	if err := ValidateCredentials(creds); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUninitialized && m.state != StateConfigured {
		return &ConfigError{Field: "state", Reason: "interface already started", Err: ErrInvalidState}
	}

	if err := m.driver.SetConfiguration(ctx, creds); err != nil {
		return &ConfigError{Field: "driver", Reason: "rejected by interface", Err: err}
	}

	m.creds = creds
	m.state = StateConfigured
	m.logger.Info("station configured", "ssid", ssid, "auth", creds.Auth())
	return nil
}

// ValidateCredentials checks credentials against the station buffers.
func ValidateCredentials(creds Credentials) error {
	switch n := len(creds.SSID); {
	case n == 0:
		return &ConfigError{Field: "ssid", Reason: "must not be empty"}
	case n > config.MaxSSIDLength:
		return &ConfigError{Field: "ssid", Reason: fmt.Sprintf("%d bytes exceeds capacity of %d", n, config.MaxSSIDLength)}
	}

	switch n := len(creds.Password); {
	case n > config.MaxPasswordLength:
		return &ConfigError{Field: "password", Reason: fmt.Sprintf("%d bytes exceeds capacity of %d", n, config.MaxPasswordLength)}
	}

	return nil
}

// Start activates the interface. The link must be configured.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConfigured {
		return newStartError(fmt.Errorf("%w: %s", ErrInvalidState, m.state))
	}

	if err := m.driver.Start(ctx); err != nil {
		return newStartError(err)
	}

	m.state = StateStarted
	m.logger.Info("interface started")
	return nil
}

// Connect requests association. It may be called again after the link
// has been lost.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateStarted, StateConnecting, StateDisassociated:
	default:
		return newConnectError(fmt.Errorf("%w: %s", ErrInvalidState, m.state))
	}

	if err := m.driver.Connect(ctx); err != nil {
		return newConnectError(err)
	}

	m.state = StateConnecting
	m.logger.Debug("association requested", "ssid", m.creds.SSID)
	return nil
}

// IsAssociated queries the driver without blocking for association.
//
// A positive answer moves Connecting to Associated; a negative answer
// while Associated moves the link to Disassociated.
func (m *Manager) IsAssociated(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state < StateStarted {
		return false, newStatusError("is_associated", fmt.Errorf("%w: %s", ErrInvalidState, m.state))
	}

	ok, err := m.driver.IsConnected(ctx)
	if err != nil {
		return false, newStatusError("is_associated", err)
	}

	prev := m.state
	switch {
	case ok && prev != StateAssociated:
		m.state = StateAssociated
		m.logger.Info("link associated", "ssid", m.creds.SSID)
	case !ok && prev == StateAssociated:
		m.state = StateDisassociated
		m.logger.Warn("link lost", "ssid", m.creds.SSID)
	}

	return ok, nil
}

// CurrentIPInfo returns the interface addressing.
func (m *Manager) CurrentIPInfo(ctx context.Context) (IPInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAssociated {
		return IPInfo{}, newStatusError("ip_info", fmt.Errorf("%w: %s", ErrNotAvailable, m.state))
	}

	info, err := m.driver.IPInfo(ctx)
	if err != nil {
		return IPInfo{}, newStatusError("ip_info", err)
	}
	return info, nil
}

// Configuration returns the station configuration snapshot.
func (m *Manager) Configuration(ctx context.Context) (Configuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.driver.Configuration(ctx)
	if err != nil {
		return Configuration{}, newStatusError("configuration", err)
	}
	snap.State = m.state.String()
	return snap, nil
}

// Stop deactivates the interface and returns to Configured.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state < StateStarted {
		return nil
	}
	if err := m.driver.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("link: stop: %w", err)
	}
	m.state = StateConfigured
	m.logger.Info("interface stopped")
	return nil
}
