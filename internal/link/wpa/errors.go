package wpa

import "errors"

// Sentinel errors for the wpa_supplicant driver.
var (
	// ErrCommandFailed is returned when wpa_cli answers FAIL or an
	// unexpected reply.
	ErrCommandFailed = errors.New("wpa: command failed")

	// ErrUnsupportedCredential is returned for credentials that cannot
	// be written to a supplicant network block.
	ErrUnsupportedCredential = errors.New("wpa: unsupported credential")

	// ErrSupplicantDown is returned when the supplicant control socket
	// does not answer.
	ErrSupplicantDown = errors.New("wpa: supplicant not responding")

	// ErrNotConfigured is returned when Start is called before credentials are set.
	ErrNotConfigured = errors.New("wpa: no network configured")
)
