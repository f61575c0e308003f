// Package logging builds the structured slog loggers used across BookLens.
//
// It owns the console and JSON handlers, maps level names, and provides a
// no-op logger for tests and for wiring code that was handed a nil logger.
package logging
