package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"tapedeck/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
	// Color forces ANSI level colouring on console output. When false, colour
	// is enabled only if stdout is a terminal.
	Color bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	writer, terminal, err := openWriters(opts.OutputPaths)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	var handler slog.Handler
	switch format {
	case "", "console":
		handler = newConsoleHandler(writer, levelVar, addSource, opts.Color || terminal)
	case "json":
		handler = newJSONHandler(writer, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), nil
}

// NewFromConfig creates a logger from the [logging] section. When logPath is
// set, the console stream on stdout is teed into a JSON log file.
func NewFromConfig(cfg *config.Config, logPath string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}

	base, err := New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(logPath) == "" {
		return base, nil
	}

	file, _, err := openWriters([]string{logPath})
	if err != nil {
		return nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(cfg.Logging.Level))
	return TeeLogger(base, newJSONHandler(file, levelVar, false)), nil
}

// ParseLevel maps a textual level to its slog value. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	return parseLevel(level)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWriters resolves output targets. The boolean reports whether the only
// destination is an interactive terminal.
func openWriters(paths []string) (io.Writer, bool, error) {
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	seen := map[string]struct{}{}
	var writers []io.Writer
	terminal := true

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
			terminal = terminal && isatty.IsTerminal(os.Stdout.Fd())
		case "stderr":
			writers = append(writers, os.Stderr)
			terminal = terminal && isatty.IsTerminal(os.Stderr.Fd())
		default:
			if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, false, fmt.Errorf("ensure log directory: %w", err)
				}
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, false, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
			terminal = false
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, false, nil
	case 1:
		return writers[0], terminal, nil
	default:
		return io.MultiWriter(writers...), false, nil
	}
}
