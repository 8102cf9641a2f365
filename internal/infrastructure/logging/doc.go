// Package logging provides structured logging for Gray Logic Auth.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the service.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Redaction of attributes keyed like secrets (password, token, ticket, ...)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("login succeeded", "user_id", id)
//	logger.Error("refresh failed", "error", err)
//
// # Security
//
// Never log passwords, raw tokens, or stored verifiers. Log account ids instead.
// Redaction is a backstop for attribute keys only; a secret interpolated into
// a message string is not caught.
package logging
