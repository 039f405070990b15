package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateRestart(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if strings.TrimSpace(c.Capture.FFmpegPath) == "" {
		return errors.New("capture.ffmpeg_path must be set")
	}
	if strings.TrimSpace(c.Capture.SourceURL) == "" {
		return errors.New("capture.source_url is required. Set TAPEDECK_SOURCE_URL or edit the config file")
	}
	if _, ok := validTransports[c.Capture.Transport]; !ok {
		return fmt.Errorf("capture.transport must be one of tcp, udp, http (got %q)", c.Capture.Transport)
	}
	if c.Capture.SegmentSeconds <= 0 {
		return errors.New("capture.segment_seconds must be positive")
	}
	if strings.ContainsAny(c.Capture.SegmentFormat, `/\ `) {
		return fmt.Errorf("capture.segment_format %q is not a valid extension", c.Capture.SegmentFormat)
	}
	if strings.ContainsAny(c.Capture.FilenamePattern, `/\`) {
		return errors.New("capture.filename_pattern must not contain path separators")
	}
	for _, field := range []intField{
		{"capture.buffer_size", c.Capture.BufferSize},
		{"capture.max_delay", c.Capture.MaxDelay},
		{"capture.socket_timeout", c.Capture.SocketTimeout},
	} {
		if field.value < 0 {
			return fmt.Errorf("%s must be >= 0", field.key)
		}
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositive([]intField{
		{"watchdog.poll_interval", c.Watchdog.PollInterval},
		{"watchdog.stall_timeout", c.Watchdog.StallTimeout},
		{"watchdog.file_timeout", c.Watchdog.FileTimeout},
		{"shutdown.quit_timeout", c.Shutdown.QuitTimeout},
		{"shutdown.interrupt_timeout", c.Shutdown.InterruptTimeout},
		{"shutdown.terminate_timeout", c.Shutdown.TerminateTimeout},
		{"retention.interval", c.Retention.Interval},
	})
}

func (c *Config) validateRestart() error {
	if c.Restart.BackoffInitial < 0 {
		return errors.New("restart.backoff_initial must be >= 0")
	}
	if c.Restart.BackoffResetAfter < 0 {
		return errors.New("restart.backoff_reset_after must be >= 0")
	}
	if c.Restart.BackoffInitial > 0 && c.Restart.BackoffMax < c.Restart.BackoffInitial {
		return errors.New("restart.backoff_max must be >= restart.backoff_initial")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.MaxFiles <= 0 {
		return errors.New("retention.max_files must be positive")
	}
	if c.Retention.maxSizeBytes <= 0 {
		return errors.New("retention.max_size must be positive")
	}
	return nil
}

// intField pairs a config key with its value; checks run in slice order so
// the first invalid key is always the one reported.
type intField struct {
	key   string
	value int
}

func ensurePositive(fields []intField) error {
	for _, field := range fields {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive", field.key)
		}
	}
	return nil
}
