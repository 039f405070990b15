// Package logs tails the daemon's JSON log file for the CLI and the IPC
// LogTail call.
//
// Negative offsets mean "the last N lines", positive offsets resume where a
// previous call stopped, and follow mode waits briefly for new lines so
// `tapedeck logs --follow` can poll without spinning. Entries can be filtered
// by component, cycle, or minimum level after they are decoded.
package logs
