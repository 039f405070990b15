package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tapedeck/internal/testsupport"
)

func TestStatusOffline(t *testing.T) {
	env := newOfflineEnv(t, testsupport.WithRetention(5, "1 MiB"))
	testsupport.WriteSegments(t, env.cfg.Paths.OutputDir, env.cfg.SegmentExtension(), 1024, 2048)

	out := env.run(t, "status")
	requireContains(t, out, "System Status")
	requireContains(t, out, "Not running")
	requireContains(t, out, "2 files, 3.0 KiB")
	requireContains(t, out, "0 journaled")
	if strings.Contains(out, "== Capture ==") {
		t.Fatalf("offline status should not render the capture section: %q", out)
	}
}

func TestDaemonCommandsAgainstRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithRetention(2, "1 GiB"))

	deadline := time.Now().Add(5 * time.Second)
	for env.daemon.Status(t.Context()).Capture.State != "running" {
		if time.Now().After(deadline) {
			t.Fatal("capture never reached running")
		}
		time.Sleep(10 * time.Millisecond)
	}

	out := env.run(t, "start")
	requireContains(t, out, "Daemon already running")

	out = env.run(t, "status")
	requireContains(t, out, "== Capture ==")
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "no segment yet")

	out = env.run(t, "restart", "--reason", "cli test")
	requireContains(t, out, "Capture restart requested")
	for env.launcher.Launches() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("restart did not relaunch capture")
		}
		time.Sleep(10 * time.Millisecond)
	}

	paths := testsupport.WriteSegments(t, env.cfg.Paths.OutputDir, env.cfg.SegmentExtension(), 10, 20, 30)
	for env.daemon.Status(t.Context()).Tracking.CurrentFile != paths[2] {
		if time.Now().After(deadline) {
			t.Fatal("watcher never adopted the newest segment")
		}
		time.Sleep(10 * time.Millisecond)
	}

	out = env.run(t, "segments")
	requireContains(t, out, filepath.Base(paths[2]))
	requireContains(t, out, "recording")
	requireContains(t, out, "3 files")

	out = env.run(t, "prune")
	requireContains(t, out, "Deleted "+paths[0])
	requireContains(t, out, "2 segments")
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be pruned", paths[0])
	}

	out = env.run(t, "history")
	requireContains(t, out, "restarted (operator): cli test")
	requireContains(t, out, "1 evictions")

	out = env.run(t, "history", "--evictions")
	requireContains(t, out, "count")
}

func TestSegmentsAndHistoryOffline(t *testing.T) {
	env := newOfflineEnv(t, testsupport.WithRetention(1, "1 GiB"))
	paths := testsupport.WriteSegments(t, env.cfg.Paths.OutputDir, env.cfg.SegmentExtension(), 10, 20)

	out := env.run(t, "segments")
	requireContains(t, out, filepath.Base(paths[0]))
	requireContains(t, out, "2 files")

	out = env.run(t, "history")
	requireContains(t, out, "No cycles journaled")

	out = env.run(t, "prune")
	requireContains(t, out, "Deleted "+paths[0])

	out = env.run(t, "history", "--evictions")
	requireContains(t, out, "count")
}

func TestStopWhenNotRunning(t *testing.T) {
	env := newOfflineEnv(t)
	out := env.run(t, "stop")
	requireContains(t, out, "Daemon is not running")
}

func TestRestartRequiresDaemon(t *testing.T) {
	env := newOfflineEnv(t)
	_, _, err := runCLI(t, []string{"restart"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "tapedeck start") {
		t.Fatalf("expected a hint to start the daemon, got %v", err)
	}
}
