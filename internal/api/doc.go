// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates supervisor, session, retention, and history models
// into transport-friendly DTOs that the CLI and HTTP clients can render
// without coupling to internal types.
//
// # Key Types
//
// DaemonStatus: aggregated runtime information including the capture
// supervisor, the tracked segment, the last retention pass, and dependencies.
//
// Segment: one recorded file with size, timestamps, and whether it is live.
//
// HistoryResponse: journaled cycles and evictions plus a summary.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds and are empty when unset.
package api
