package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present", "#!/bin/sh\nexit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestCheckFFmpegReadsVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	stub := writeStub(t, t.TempDir(), "ffmpeg",
		"#!/bin/sh\necho 'ffmpeg version 7.1 Copyright (c) 2000-2024'\necho 'built with gcc'\n")

	status := CheckFFmpeg(context.Background(), stub)
	if !status.Available {
		t.Fatalf("expected ffmpeg to be available, got detail %q", status.Detail)
	}
	if status.Version != "ffmpeg version 7.1 Copyright (c) 2000-2024" {
		t.Fatalf("unexpected version %q", status.Version)
	}
}

func TestCheckFFmpegProbeFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	stub := writeStub(t, t.TempDir(), "ffmpeg", "#!/bin/sh\nexit 3\n")

	status := CheckFFmpeg(context.Background(), stub)
	if status.Available {
		t.Fatal("expected failing probe to mark ffmpeg unavailable")
	}
	if status.Detail == "" {
		t.Fatal("expected detail for failed probe")
	}
}

func TestCheckFFmpegNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := CheckFFmpeg(context.Background(), "ffmpeg")
	if status.Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
}
