package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	if err := c.normalizeRetention(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("TAPEDECK_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeCapture() {
	if value, ok := os.LookupEnv("TAPEDECK_SOURCE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Capture.SourceURL = strings.TrimSpace(value)
	}
	c.Capture.SourceURL = strings.TrimSpace(c.Capture.SourceURL)
	c.Capture.FFmpegPath = strings.TrimSpace(c.Capture.FFmpegPath)
	if c.Capture.FFmpegPath == "" {
		c.Capture.FFmpegPath = defaultFFmpegPath
	}
	// Relative paths such as ./bin/ffmpeg are resolved; bare names stay on PATH.
	if strings.ContainsAny(c.Capture.FFmpegPath, `/\`) {
		if expanded, err := expandPath(c.Capture.FFmpegPath); err == nil {
			c.Capture.FFmpegPath = expanded
		}
	}
	c.Capture.Transport = strings.ToLower(strings.TrimSpace(c.Capture.Transport))
	if c.Capture.Transport == "" {
		c.Capture.Transport = defaultTransport
	}
	c.Capture.SegmentFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Capture.SegmentFormat), "."))
	if c.Capture.SegmentFormat == "" {
		c.Capture.SegmentFormat = defaultSegmentFormat
	}
	c.Capture.FilenamePattern = strings.TrimSpace(c.Capture.FilenamePattern)
	if c.Capture.FilenamePattern == "" {
		c.Capture.FilenamePattern = defaultFilenamePattern
	}
	c.Capture.LogLevel = strings.ToLower(strings.TrimSpace(c.Capture.LogLevel))
	if c.Capture.QuitCommand == "" {
		c.Capture.QuitCommand = defaultQuitCommand
	}
}

func (c *Config) normalizeRetention() error {
	c.Retention.MaxSize = strings.TrimSpace(c.Retention.MaxSize)
	if c.Retention.MaxSize == "" {
		c.Retention.MaxSize = defaultRetentionMaxSize
	}
	size, err := humanize.ParseBytes(c.Retention.MaxSize)
	if err != nil {
		return fmt.Errorf("retention.max_size: %w", err)
	}
	c.Retention.maxSizeBytes = int64(size)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
