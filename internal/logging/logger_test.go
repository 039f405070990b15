package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tapedeck/internal/config"
	"tapedeck/internal/logging"
)

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("segment found", logging.String(logging.FieldComponent, "watchdog"), logging.Int64("size", 42))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no source information in info logs, got %q", line)
	}
	if !strings.Contains(line, "watchdog: segment found") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "size=42") {
		t.Fatalf("expected size attribute, got %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("file output should not be coloured, got %q", line)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("with source")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected source information in debug logs, got %q", content)
	}
}

func TestJSONLoggerFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("capture started", logging.Int("pid", 99))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["level"] != "info" || entry["msg"] != "capture started" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, err := time.Parse(time.RFC3339, entry["ts"].(string)); err != nil {
		t.Fatalf("ts should be RFC3339: %v", err)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"invalid": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := logging.ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewFromConfigTeesToFile(t *testing.T) {
	cfg := config.Default()
	logPath := filepath.Join(t.TempDir(), "logs", "tapedeck.log")
	logger, err := logging.NewFromConfig(&cfg, logPath)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("tee check")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"tee check"`) {
		t.Fatalf("expected JSON entry in file, got %q", content)
	}
}

func TestWithContextAddsCycleID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := logging.WithCycleID(context.Background(), "cycle-123")

	logging.WithContext(ctx, logger).Info("contextual log")

	if !strings.Contains(buf.String(), `"cycle_id":"cycle-123"`) {
		t.Fatalf("expected cycle id in output, got %q", buf.String())
	}
	if id, ok := logging.CycleIDFromContext(ctx); !ok || id != "cycle-123" {
		t.Fatalf("CycleIDFromContext = %q, %v", id, ok)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "stalled", "capture_stalled", logging.String(logging.FieldImpact, "recording gap"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldEventType] != "capture_stalled" {
		t.Fatalf("unexpected event_type %v", entry[logging.FieldEventType])
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error_hint")
	}
	if entry[logging.FieldImpact] != "recording gap" {
		t.Fatalf("explicit impact should win, got %v", entry[logging.FieldImpact])
	}
}

func TestTeeLoggerRespectsLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger := logging.TeeLogger(base, slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Debug("debug only")
	logger.With(logging.String("k", "v")).Info("both")

	if strings.Contains(infoBuf.String(), "debug only") {
		t.Fatal("info handler should not receive debug records")
	}
	if !strings.Contains(debugBuf.String(), "debug only") {
		t.Fatal("debug handler should receive debug records")
	}
	for _, out := range []string{infoBuf.String(), debugBuf.String()} {
		if !strings.Contains(out, `"k":"v"`) {
			t.Fatalf("expected attrs on both handlers, got %q", out)
		}
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "tapedeck-old.log")
	fresh := filepath.Join(dir, "tapedeck-new.log")
	current := filepath.Join(dir, "tapedeck-current.log")
	for _, path := range []string{old, fresh, current} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "tapedeck-*.log",
		Exclude: []string{current},
	})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{fresh, current} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
