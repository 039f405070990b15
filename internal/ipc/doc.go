// Package ipc exposes the daemon over JSON-RPC on a Unix socket in state_dir
// and ships the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Status,
// segment, and history payloads reuse the api package types so the CLI
// renders IPC and HTTP responses the same way.
package ipc
