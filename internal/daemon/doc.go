// Package daemon coordinates the long-running tapedeck process.
//
// It wires configuration, the history journal, the capture supervisor, the
// filesystem watcher, and the retention manager into a single lifecycle with
// flock-based locking to prevent multiple recorders writing one directory.
// The loops run as services of a suture tree so a crashed watcher or API
// listener is restarted with backoff while the capture keeps going.
//
// Keep orchestration logic here: recording, liveness, and deletion rules live
// in their own packages while the daemon focuses on startup, shutdown, status,
// and the HTTP API.
package daemon
