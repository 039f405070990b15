// Package logging assembles structured slog loggers and formatting helpers used
// across tapedeck.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with the active capture cycle. Warnings
// and errors go through WarnWithContext and ErrorWithContext so every line
// carries an event_type and an operator hint. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
