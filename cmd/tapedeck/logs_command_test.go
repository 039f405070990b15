package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsViaDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	lines := []string{
		`{"time":"2026-05-01T12:00:00Z","level":"INFO","msg":"capture started","component":"supervisor"}`,
		`{"time":"2026-05-01T12:00:01Z","level":"WARN","msg":"segment stalled","component":"watchdog"}`,
	}
	for _, line := range lines {
		if err := appendLine(env.logPath, line); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	out := env.run(t, "logs", "--lines", "5")
	requireContains(t, out, "capture started")
	requireContains(t, out, "segment stalled")

	out = env.run(t, "logs", "--component", "watchdog")
	requireContains(t, out, "segment stalled")
	if strings.Contains(out, "capture started") {
		t.Fatalf("component filter let other lines through:\n%s", out)
	}

	out = env.run(t, "logs", "--raw", "--level", "warn")
	requireContains(t, out, `"msg":"segment stalled"`)
}

func TestLogsOfflineReadsCurrentLog(t *testing.T) {
	env := newOfflineEnv(t)
	path := filepath.Join(env.cfg.Paths.StateDir, "tapedeck.log")
	if err := appendLine(path, `{"level":"ERROR","msg":"ffmpeg missing"}`); err != nil {
		t.Fatalf("append log: %v", err)
	}

	out := env.run(t, "logs")
	requireContains(t, out, "ERROR")
	requireContains(t, out, "ffmpeg missing")

	missing := newOfflineEnv(t)
	out = missing.run(t, "logs")
	requireContains(t, out, "No log entries available")
}
