// Package logging provides structured logging for meterthing.
//
// It wraps log/slog so every record carries the service and version
// attributes and components can add their own with Component.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting", "port", cfg.API.Port)
//	loop.SetLogger(logger.Component("bridge"))
//
// Never log MQTT credentials.
package logging
