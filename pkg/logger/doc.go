// Package logger provides the structured logging interface used across watchgraph.
//
// It wraps zerolog with a small interface supporting:
//   - Debug, Info, Warn and Error levels
//   - Structured fields via WithField, WithFields and WithError
//   - Coloured console output on stderr with optional file output
//   - A global logger for code that has no logger injected
//
// Basic usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	logger.Info("Collection started")
//	logger.WithField("username", "alice").Info("Watchlist collected")
//
// Tests use NewNopLogger to discard output or NewTestLogger to capture
// messages for assertions.
package logger
