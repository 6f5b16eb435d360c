// Package link manages a wireless network interface in station mode.
//
// The Manager walks the link through its states:
//
//	Uninitialized → Configured → Started → Connecting → Associated
//	                                           ↑              ↓
//	                                           └─ Disassociated
//
// State only changes on explicit calls; loss of association is observed
// by IsAssociated, never pushed.
//
// Hardware access lives behind the Driver interface. The wpa sub-package
// drives wpa_supplicant on Linux; the sim sub-package is a deterministic
// stand-in for development and tests.
//
// # Credential capacity
//
// The station configuration holds the SSID in a 32-byte buffer and the
// passphrase in a 64-byte buffer. Configure rejects anything that does
// not fit with a *ConfigError (errors.Is(err, ErrConfig)).
package link
