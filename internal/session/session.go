// Package session holds the recording state shared by the watcher, the
// watchdog, and the retention manager during a capture cycle.
package session

import (
	"sync"
	"time"

	"tapedeck/internal/segments"
)

// Snapshot is a consistent copy of the session fields.
type Snapshot struct {
	CycleID        string
	CycleStart     time.Time
	CurrentFile    string
	CurrentCreated time.Time
	LastProgress   time.Time
	LastSize       int64
}

// Tracking reports whether a segment has been adopted this cycle.
func (s Snapshot) Tracking() bool {
	return s.CurrentFile != ""
}

// Session is the lock-protected record of the segment being written.
// CurrentFile only moves to files created at or after the tracked one.
type Session struct {
	mu  sync.Mutex
	now func() time.Time

	cycleID        string
	cycleStart     time.Time
	currentFile    string
	currentCreated time.Time
	lastProgress   time.Time
	lastSize       int64
}

// New returns a session using the wall clock.
func New() *Session {
	return NewWithClock(time.Now)
}

// NewWithClock returns a session whose timestamps come from now.
func NewWithClock(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	s := &Session{now: now}
	s.cycleStart = now()
	s.lastProgress = s.cycleStart
	return s
}

// Reset clears tracking at the start of a capture cycle.
func (s *Session) Reset(cycleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.cycleID = cycleID
	s.cycleStart = now
	s.currentFile = ""
	s.currentCreated = time.Time{}
	s.lastProgress = now
	s.lastSize = 0
}

// Snapshot returns the current state under the lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		CycleID:        s.cycleID,
		CycleStart:     s.cycleStart,
		CurrentFile:    s.currentFile,
		CurrentCreated: s.currentCreated,
		LastProgress:   s.lastProgress,
		LastSize:       s.lastSize,
	}
}

// CurrentFile returns the path being written, or "" when none is tracked.
func (s *Session) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFile
}

// Advance adopts path as the current file and restarts the progress clock.
// It refuses files created before the tracked one and repeats of the same
// path, returning false in both cases.
func (s *Session) Advance(path string, created time.Time, size int64) bool {
	if path == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == s.currentFile {
		return false
	}
	if s.currentFile != "" && created.Before(s.currentCreated) {
		return false
	}
	s.currentFile = path
	s.currentCreated = created
	s.lastSize = size
	s.lastProgress = s.now()
	return true
}

// RecordProgress stores a grown size for path. It reports false, and changes
// nothing, when the session has moved on to another file since path was read.
func (s *Session) RecordProgress(path string, size int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" || path != s.currentFile {
		return false
	}
	s.lastSize = size
	s.lastProgress = s.now()
	return true
}

// FileFinalized implements the watcher's sink: it stats path and advances to
// it. Paths that vanish before the stat are ignored.
func (s *Session) FileFinalized(path string) bool {
	file, err := segments.Stat(path)
	if err != nil {
		return false
	}
	return s.Advance(file.Path, file.Created, file.Size)
}
