package capture

import (
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ncruces/go-strftime"

	"tapedeck/internal/config"
)

// Options is the fixed invocation of one capture cycle.
type Options struct {
	FFmpegPath      string
	SourceURL       string
	Transport       string
	OutputDir       string
	SegmentSeconds  int
	SegmentFormat   string
	FilenamePattern string
	LogLevel        string
	NoStats         bool
	BufferSize      int
	MaxDelay        int
	SocketTimeout   int
	QuitCommand     string
}

// OptionsFromConfig copies the [capture] section and output directory.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FFmpegPath:      cfg.Capture.FFmpegPath,
		SourceURL:       cfg.Capture.SourceURL,
		Transport:       cfg.Capture.Transport,
		OutputDir:       cfg.Paths.OutputDir,
		SegmentSeconds:  cfg.Capture.SegmentSeconds,
		SegmentFormat:   cfg.Capture.SegmentFormat,
		FilenamePattern: cfg.Capture.FilenamePattern,
		LogLevel:        cfg.Capture.LogLevel,
		NoStats:         cfg.Capture.NoStats,
		BufferSize:      cfg.Capture.BufferSize,
		MaxDelay:        cfg.Capture.MaxDelay,
		SocketTimeout:   cfg.Capture.SocketTimeout,
		QuitCommand:     cfg.Capture.QuitCommand,
	}
}

// Extension returns the dotted segment extension.
func (o Options) Extension() string {
	return "." + o.SegmentFormat
}

// OutputPattern is the strftime template handed to the segment muxer.
func (o Options) OutputPattern() string {
	return filepath.Join(o.OutputDir, o.FilenamePattern+o.Extension())
}

// NominalPath renders the output pattern at t. The muxer names the first
// segment of a cycle this way when it starts promptly.
func (o Options) NominalPath(t time.Time) string {
	return strftime.Format(o.OutputPattern(), t)
}

// Args builds the argument list, excluding the program path. Zero-valued
// tuning options are left to the program defaults.
func (o Options) Args() []string {
	args := []string{"-hide_banner"}
	if o.NoStats {
		args = append(args, "-nostats")
	}
	if o.LogLevel != "" {
		args = append(args, "-loglevel", o.LogLevel)
	}
	args = append(args, "-rtsp_transport", o.Transport)
	if o.BufferSize > 0 {
		args = append(args, "-buffer_size", strconv.Itoa(o.BufferSize))
	}
	if o.MaxDelay > 0 {
		args = append(args, "-max_delay", strconv.Itoa(o.MaxDelay))
	}
	if o.SocketTimeout > 0 {
		args = append(args, "-timeout", strconv.Itoa(o.SocketTimeout))
	}
	args = append(args,
		"-i", o.SourceURL,
		"-c", "copy",
		"-f", "segment",
		"-reset_timestamps", "1",
		"-strftime", "1",
		"-segment_time", strconv.Itoa(o.SegmentSeconds),
		"-segment_format", o.SegmentFormat,
		o.OutputPattern(),
	)
	return args
}

// RedactedSource hides credentials embedded in the source locator.
func (o Options) RedactedSource() string {
	u, err := url.Parse(o.SourceURL)
	if err != nil || u.User == nil {
		return o.SourceURL
	}
	return u.Redacted()
}
