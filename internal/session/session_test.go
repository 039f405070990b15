package session_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tapedeck/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestResetClearsTracking(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := session.NewWithClock(clock.Now)
	require.True(t, s.Advance("/rec/a.mkv", clock.Now(), 10))

	clock.Advance(time.Minute)
	s.Reset("cycle-2")
	snap := s.Snapshot()
	require.False(t, snap.Tracking())
	require.Equal(t, "cycle-2", snap.CycleID)
	require.Equal(t, clock.Now(), snap.CycleStart)
	require.Equal(t, clock.Now(), snap.LastProgress)
	require.Zero(t, snap.LastSize)
}

func TestAdvanceOnlyMovesForward(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := session.NewWithClock(clock.Now)
	created := clock.Now()

	require.True(t, s.Advance("/rec/b.mkv", created, 5))
	require.False(t, s.Advance("/rec/a.mkv", created.Add(-time.Second), 50), "older file must not replace newer")
	require.Equal(t, "/rec/b.mkv", s.CurrentFile())

	require.True(t, s.Advance("/rec/c.mkv", created, 0), "equal creation time is accepted")
	require.Equal(t, "/rec/c.mkv", s.CurrentFile())
	require.False(t, s.Advance("/rec/c.mkv", created.Add(time.Hour), 0), "same path is a no-op")
}

func TestAdvanceResetsProgress(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := session.NewWithClock(clock.Now)
	s.Reset("c")
	clock.Advance(5 * time.Second)

	require.True(t, s.Advance("/rec/a.mkv", clock.Now(), 123))
	snap := s.Snapshot()
	require.Equal(t, clock.Now(), snap.LastProgress)
	require.Equal(t, int64(123), snap.LastSize)

	clock.Advance(time.Second)
	require.True(t, s.RecordProgress("/rec/a.mkv", 456))
	snap = s.Snapshot()
	require.Equal(t, clock.Now(), snap.LastProgress)
	require.Equal(t, int64(456), snap.LastSize)
}

func TestRecordProgressIgnoresSupersededFile(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := session.NewWithClock(clock.Now)
	s.Reset("c")
	require.True(t, s.Advance("/rec/a.mkv", clock.Now(), 100))

	// A tick reads a.mkv, then the watcher switches to b.mkv before the
	// tick reports a.mkv's size.
	read := s.Snapshot()
	clock.Advance(time.Second)
	require.True(t, s.Advance("/rec/b.mkv", clock.Now(), 0))
	switched := clock.Now()
	clock.Advance(time.Second)

	require.False(t, s.RecordProgress(read.CurrentFile, 5_000_000_000))
	snap := s.Snapshot()
	require.Equal(t, "/rec/b.mkv", snap.CurrentFile)
	require.Equal(t, int64(0), snap.LastSize)
	require.Equal(t, switched, snap.LastProgress)

	require.False(t, s.RecordProgress("", 10), "no file tracked under an empty path")
	require.True(t, s.RecordProgress("/rec/b.mkv", 10))
	require.Equal(t, int64(10), s.Snapshot().LastSize)
}

func TestFileFinalizedIgnoresVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	s := session.New()
	require.False(t, s.FileFinalized(filepath.Join(dir, "gone.mkv")))
	require.Empty(t, s.CurrentFile())

	path := filepath.Join(dir, "seg.mkv")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	require.True(t, s.FileFinalized(path))
	require.Equal(t, path, s.CurrentFile())
	require.Equal(t, int64(4), s.Snapshot().LastSize)
}

func TestConcurrentAdvance(t *testing.T) {
	s := session.New()
	base := time.Unix(1_700_000_000, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Advance(filepath.Join("/rec", time.Duration(i).String()+".mkv"), base.Add(time.Duration(i)*time.Second), int64(i))
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()
	require.Equal(t, base.Add(49*time.Second), s.Snapshot().CurrentCreated)
}
