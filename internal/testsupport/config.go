package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tapedeck/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timings are shortened so loops tick quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "record")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Capture.SourceURL = "rtsp://camera.test/stream"
	cfgVal.Shutdown.QuitTimeout = 1
	cfgVal.Shutdown.InterruptTimeout = 1
	cfgVal.Shutdown.TerminateTimeout = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSourceURL sets the capture source on the test config.
func WithSourceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.SourceURL = url
	}
}

// WithRetention overrides the retention caps on the test config.
func WithRetention(maxFiles int, maxSize string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retention.MaxFiles = maxFiles
		if err := b.cfg.SetMaxSize(maxSize); err != nil {
			b.t.Fatalf("retention max size: %v", err)
		}
	}
}

// WithStubbedCapture writes an executable named ffmpeg that runs script and
// points the config at it. An empty script idles until told to quit.
func WithStubbedCapture(script string) ConfigOption {
	return func(b *configBuilder) {
		if script == "" {
			script = "read line\nexit 255\n"
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "ffmpeg")
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
			b.t.Fatalf("write stub ffmpeg: %v", err)
		}
		b.cfg.Capture.FFmpegPath = target
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
