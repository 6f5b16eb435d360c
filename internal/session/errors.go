package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSessionCreate is returned when a session cannot be established.
	ErrSessionCreate = errors.New("session: create failed")

	// ErrSubscribe is returned when a subscription is not in effect.
	ErrSubscribe = errors.New("session: subscribe failed")

	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("session: not connected")

	// ErrInvalidURI is returned for broker URIs that cannot be dialled.
	ErrInvalidURI = errors.New("session: invalid broker uri")

	// ErrInvalidFilter is returned for malformed topic filters.
	ErrInvalidFilter = errors.New("session: invalid topic filter")

	// ErrInvalidQoS is returned when QoS is not 0, 1 or 2.
	ErrInvalidQoS = errors.New("session: invalid QoS level (must be 0, 1, or 2)")

	// ErrTimeout is returned when the broker does not answer in time.
	ErrTimeout = errors.New("session: operation timed out")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
)

// CreateError reports a failed session establishment.
type CreateError struct {
	Broker string
	Err    error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrSessionCreate, e.Broker, e.Err)
}

func (e *CreateError) Unwrap() []error { return []error{ErrSessionCreate, e.Err} }

// SubscribeError reports a subscription that is not in effect.
type SubscribeError struct {
	Filter string
	QoS    byte
	Err    error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("%v: %q qos %d: %v", ErrSubscribe, e.Filter, e.QoS, e.Err)
}

func (e *SubscribeError) Unwrap() []error { return []error{ErrSubscribe, e.Err} }

// RejectedError is returned by transports when the broker refuses a
// subscription with a failure reason code.
type RejectedError struct {
	Filter string
	Code   byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("broker rejected %q with reason code 0x%02x", e.Filter, e.Code)
}

// SubackFailure is the MQTT 3.1.1 SUBACK return code for a refused
// subscription. Reason codes at or above it are failures in MQTT 5 as well.
const SubackFailure = 0x80
