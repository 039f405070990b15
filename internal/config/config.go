package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Capture describes how the external capture program is invoked.
type Capture struct {
	FFmpegPath      string `toml:"ffmpeg_path"`
	SourceURL       string `toml:"source_url"`
	Transport       string `toml:"transport"`
	SegmentSeconds  int    `toml:"segment_seconds"`
	SegmentFormat   string `toml:"segment_format"`
	FilenamePattern string `toml:"filename_pattern"`
	LogLevel        string `toml:"loglevel"`
	NoStats         bool   `toml:"nostats"`
	BufferSize      int    `toml:"buffer_size"`
	MaxDelay        int    `toml:"max_delay"`
	SocketTimeout   int    `toml:"socket_timeout"`
	QuitCommand     string `toml:"quit_command"`
}

// Watchdog contains liveness polling settings, in seconds.
type Watchdog struct {
	PollInterval int `toml:"poll_interval"`
	StallTimeout int `toml:"stall_timeout"`
	FileTimeout  int `toml:"file_timeout"`
}

// Shutdown bounds each stage of the capture shutdown sequence, in seconds.
type Shutdown struct {
	QuitTimeout      int `toml:"quit_timeout"`
	InterruptTimeout int `toml:"interrupt_timeout"`
	TerminateTimeout int `toml:"terminate_timeout"`
}

// Restart controls the delay between capture cycles, in seconds. A zero
// BackoffInitial restarts immediately.
type Restart struct {
	BackoffInitial    int `toml:"backoff_initial"`
	BackoffMax        int `toml:"backoff_max"`
	BackoffResetAfter int `toml:"backoff_reset_after"`
}

// Retention bounds the number and cumulative size of recorded segments.
type Retention struct {
	Interval int    `toml:"interval"`
	MaxFiles int    `toml:"max_files"`
	MaxSize  string `toml:"max_size"`

	maxSizeBytes int64
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for tapedeck.
//
// Configuration sections by subsystem:
//   - Paths: output and state directories, API bind address
//   - Capture: ffmpeg invocation and segment layout
//   - Watchdog: liveness polling and timeouts
//   - Shutdown: staged shutdown timeouts
//   - Restart: delay between capture cycles
//   - Retention: segment count and size caps
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Capture   Capture   `toml:"capture"`
	Watchdog  Watchdog  `toml:"watchdog"`
	Shutdown  Shutdown  `toml:"shutdown"`
	Restart   Restart   `toml:"restart"`
	Retention Retention `toml:"retention"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tapedeck/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tapedeck.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SegmentExtension returns the dotted, lower-case extension of recorded segments.
func (c *Config) SegmentExtension() string {
	return "." + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Capture.SegmentFormat), "."))
}

// MaxSizeBytes returns the parsed retention.max_size value.
func (c *Config) MaxSizeBytes() int64 {
	return c.Retention.maxSizeBytes
}

// SetMaxSize parses value as retention.max_size.
func (c *Config) SetMaxSize(value string) error {
	c.Retention.MaxSize = value
	return c.normalizeRetention()
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "tapedeck.lock")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "tapedeck.sock")
}

// PIDPath returns the file the daemon writes its process ID to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "tapedeck.pid")
}

// HistoryPath returns the cycle journal database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// Seconds converts a configured second count to a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
