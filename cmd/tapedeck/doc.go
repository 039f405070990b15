// Package main hosts the tapedeck CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the recorder in the foreground, manages a
// detached daemon, and translates the remaining commands into IPC calls
// against it. Status, segment listing, and history fall back to reading the
// state directory directly when no daemon answers.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
