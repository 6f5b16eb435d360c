// Package logging provides structured logging for Gray Logic Edge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, line-oriented logging across the node.
//
// # Features
//
//   - Text output by default (one human-readable line per record)
//   - JSON output when a log collector is attached
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log Wi-Fi passphrases or broker passwords. The link configuration
// snapshot only records whether a password is set.
package logging
