package mqtt5

import "errors"

var (
	// ErrNotConnected: Subscribe before Connect, or while autopaho is
	// reconnecting.
	ErrNotConnected = errors.New("mqtt5: client not connected")

	// ErrConnectionFailed: no CONNACK within the connect timeout.
	ErrConnectionFailed = errors.New("mqtt5: connection failed")

	// ErrSubscribeFailed: the SUBSCRIBE exchange itself failed. A refusal
	// carried in the SUBACK is a *session.RejectedError instead.
	ErrSubscribeFailed = errors.New("mqtt5: subscribe failed")

	// ErrAlreadyConnected: Connect called twice on one transport.
	ErrAlreadyConnected = errors.New("mqtt5: transport already connected")
)
