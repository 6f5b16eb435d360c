package link

import (
	"errors"
	"fmt"
)

// Sentinel errors for link operations.
// Use errors.Is() to classify a failure; errors.As() with the typed
// errors below recovers the operation detail.
var (
	// ErrConfig is returned when station credentials are rejected.
	ErrConfig = errors.New("link: configuration rejected")

	// ErrStart is returned when the interface cannot be activated.
	ErrStart = errors.New("link: start failed")

	// ErrConnect is returned when association cannot be requested.
	ErrConnect = errors.New("link: connect failed")

	// ErrStatus is returned when the driver cannot be queried.
	ErrStatus = errors.New("link: status query failed")

	// ErrNotAvailable is returned when IP information is not yet assigned.
	ErrNotAvailable = errors.New("link: ip information not available")

	// ErrInvalidState is returned when an operation is called out of order.
	ErrInvalidState = errors.New("link: invalid state for operation")
)

// ConfigError reports a rejected station configuration.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link: configure %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("link: configure %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfig, e.Err}
	}
	return []error{ErrConfig}
}

// opError is shared by the start, connect and status failures.
type opError struct {
	kind error
	Op   string
	Err  error
}

func (e *opError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.kind, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", e.kind, e.Op, e.Err)
}

func (e *opError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.kind, e.Err}
	}
	return []error{e.kind}
}

// StartError reports a driver fault while activating the interface.
type StartError struct{ opError }

// ConnectError reports a failed association request.
type ConnectError struct{ opError }

// StatusError reports a failed status or IP query.
type StatusError struct{ opError }

func newStartError(err error) *StartError {
	return &StartError{opError{kind: ErrStart, Op: "start", Err: err}}
}

func newConnectError(err error) *ConnectError {
	return &ConnectError{opError{kind: ErrConnect, Op: "connect", Err: err}}
}

func newStatusError(op string, err error) *StatusError {
	return &StatusError{opError{kind: ErrStatus, Op: op, Err: err}}
}
