// Package logging provides structured logging for Librarium Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file: "/var/log/librarium/core.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//
// # Security
//
// Never log passwords, password hashes, session tokens or the signing secret.
// Authentication failures are logged by error kind and subject ID only.
package logging
