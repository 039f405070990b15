// Package history journals capture cycles and segment evictions in a SQLite
// database under the state directory.
//
// The supervisor records every finished cycle through RecordCycle and the
// retention manager records every deletion through RecordEviction. The CLI
// reads the journal back with Cycles, Evictions, and Summarize.
package history
