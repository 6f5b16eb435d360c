package mqtt

import "errors"

// Transport errors. Timeouts are also wrapped with session.ErrTimeout.
var (
	// ErrNotConnected: Subscribe before Connect, or after the broker went away.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed: the broker refused or never answered CONNECT.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed: the SUBSCRIBE token completed with an error.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrTimeout: a CONNECT or SUBSCRIBE token did not complete in time.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrAlreadyConnected: Connect called twice on one transport.
	ErrAlreadyConnected = errors.New("mqtt: transport already connected")
)
