// Package logging provides structured logging for Hydroconnect Core.
//
// It wraps log/slog with JSON (production) or text (development) output,
// level filtering, and default service/version fields on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log session tokens, passwords, or device keys. Log the device ID
// or user ID instead.
package logging
