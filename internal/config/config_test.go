package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tapedeck/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Capture.SegmentSeconds != 21600 {
		t.Fatalf("unexpected segment seconds %d", cfg.Capture.SegmentSeconds)
	}
	if cfg.Retention.MaxFiles != 256 {
		t.Fatalf("unexpected max files %d", cfg.Retention.MaxFiles)
	}
	if cfg.MaxSizeBytes() != 500<<30 {
		t.Fatalf("unexpected max size %d", cfg.MaxSizeBytes())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TAPEDECK_SOURCE_URL", "")

	cfg, path, exists, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if !strings.HasSuffix(path, "missing.toml") {
		t.Fatalf("unexpected resolved path %q", path)
	}
	wantOutput := filepath.Join(tempHome, ".local", "share", "tapedeck", "record")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("expected output dir %q, got %q", wantOutput, cfg.Paths.OutputDir)
	}
	if cfg.SegmentExtension() != ".mkv" {
		t.Fatalf("unexpected extension %q", cfg.SegmentExtension())
	}
	if cfg.LockPath() != filepath.Join(cfg.Paths.StateDir, "tapedeck.lock") {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
}

func TestLoadParsesFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TAPEDECK_SOURCE_URL", "")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `[paths]
output_dir = "~/rec"
state_dir = "~/state"

[capture]
source_url = "rtsp://cam.local/stream"
transport = "UDP"
segment_format = ".MP4"
segment_seconds = 600

[retention]
max_files = 12
max_size = "2 GB"

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "rec") {
		t.Fatalf("unexpected output dir %q", cfg.Paths.OutputDir)
	}
	if cfg.Capture.Transport != "udp" {
		t.Fatalf("expected lower-cased transport, got %q", cfg.Capture.Transport)
	}
	if cfg.SegmentExtension() != ".mp4" {
		t.Fatalf("unexpected extension %q", cfg.SegmentExtension())
	}
	if cfg.Capture.SegmentSeconds != 600 {
		t.Fatalf("unexpected segment seconds %d", cfg.Capture.SegmentSeconds)
	}
	if cfg.Retention.MaxFiles != 12 {
		t.Fatalf("unexpected max files %d", cfg.Retention.MaxFiles)
	}
	if cfg.MaxSizeBytes() != 2_000_000_000 {
		t.Fatalf("unexpected max size bytes %d", cfg.MaxSizeBytes())
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format %q", cfg.Logging.Format)
	}
	// Untouched sections keep their defaults.
	if cfg.Watchdog.StallTimeout != 10 || cfg.Shutdown.QuitTimeout != 15 {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Watchdog, cfg.Shutdown)
	}
}

func TestSourceURLEnvironmentOverride(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TAPEDECK_SOURCE_URL", "rtsp://env.example/live")

	cfg, _, _, err := config.Load(filepath.Join(tempHome, "none.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Capture.SourceURL != "rtsp://env.example/live" {
		t.Fatalf("expected env override, got %q", cfg.Capture.SourceURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty source", func(c *config.Config) { c.Capture.SourceURL = " " }, "capture.source_url"},
		{"bad transport", func(c *config.Config) { c.Capture.Transport = "quic" }, "capture.transport"},
		{"zero segment", func(c *config.Config) { c.Capture.SegmentSeconds = 0 }, "capture.segment_seconds"},
		{"pattern separator", func(c *config.Config) { c.Capture.FilenamePattern = "a/%Y" }, "filename_pattern"},
		{"zero stall", func(c *config.Config) { c.Watchdog.StallTimeout = 0 }, "watchdog.stall_timeout"},
		{"zero poll", func(c *config.Config) { c.Watchdog.PollInterval = 0 }, "watchdog.poll_interval"},
		{"zero quit", func(c *config.Config) { c.Shutdown.QuitTimeout = 0 }, "shutdown.quit_timeout"},
		{"zero max files", func(c *config.Config) { c.Retention.MaxFiles = 0 }, "retention.max_files"},
		{"negative backoff", func(c *config.Config) { c.Restart.BackoffInitial = -1 }, "restart.backoff_initial"},
		{"backoff max below initial", func(c *config.Config) {
			c.Restart.BackoffInitial = 10
			c.Restart.BackoffMax = 5
		}, "restart.backoff_max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateReportsFirstInvalidKeyInOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Watchdog.FileTimeout = 0
	cfg.Shutdown.TerminateTimeout = 0
	cfg.Retention.Interval = 0
	cfg.Capture.MaxDelay = -1
	cfg.Capture.SocketTimeout = -1

	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		if err == nil || err.Error() != "capture.max_delay must be >= 0" {
			t.Fatalf("run %d: expected capture.max_delay error, got %v", i, err)
		}
	}

	cfg.Capture.MaxDelay = 0
	cfg.Capture.SocketTimeout = 0
	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		if err == nil || err.Error() != "watchdog.file_timeout must be positive" {
			t.Fatalf("run %d: expected watchdog.file_timeout error, got %v", i, err)
		}
	}
}

func TestLoadRejectsUnparseableSize(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[retention]\nmax_size = \"lots\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "retention.max_size") {
		t.Fatalf("expected max_size error, got %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TAPEDECK_SOURCE_URL", "")
	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Restart.BackoffInitial != 0 {
		t.Fatalf("sample should restart immediately, got %d", cfg.Restart.BackoffInitial)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
