// Package watchdog decides from filesystem observation alone whether the
// capture is still producing output.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tapedeck/internal/logging"
	"tapedeck/internal/metrics"
	"tapedeck/internal/segments"
	"tapedeck/internal/session"
)

// Action is the outcome of one watchdog tick.
type Action string

const (
	// ActionWaiting means no segment is tracked and the file timeout has not expired.
	ActionWaiting Action = "waiting"
	// ActionGrowing means the tracked segment grew since the last tick.
	ActionGrowing Action = "growing"
	// ActionIdle means the segment did not grow but the stall timeout has not expired.
	ActionIdle Action = "idle"
	// ActionSwitched means tracking moved to a newer segment.
	ActionSwitched Action = "switched"
	// ActionRediscovered means a segment was adopted by directory scan.
	ActionRediscovered Action = "rediscovered"
	// ActionRestart means the capture must be restarted.
	ActionRestart Action = "restart"
)

// Verdict describes a tick.
type Verdict struct {
	Action Action
	Path   string
	Reason string
}

// Options configures a Watchdog.
type Options struct {
	Dir          string
	Ext          string
	PollInterval time.Duration
	StallTimeout time.Duration
	FileTimeout  time.Duration
	Session      *session.Session
	Logger       *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Watchdog polls the tracked segment of the running cycle.
type Watchdog struct {
	dir          string
	ext          string
	pollInterval time.Duration
	stallTimeout time.Duration
	fileTimeout  time.Duration
	session      *session.Session
	logger       *slog.Logger
	now          func() time.Time
}

// New builds a watchdog.
func New(opts Options) *Watchdog {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Session == nil {
		opts.Session = session.New()
	}
	return &Watchdog{
		dir:          opts.Dir,
		ext:          opts.Ext,
		pollInterval: opts.PollInterval,
		stallTimeout: opts.StallTimeout,
		fileTimeout:  opts.FileTimeout,
		session:      opts.Session,
		logger:       logging.NewComponentLogger(opts.Logger, "watchdog"),
		now:          opts.Now,
	}
}

// Watch polls every PollInterval until ctx ends or a restart is raised. At
// most one restart is requested per call.
func (w *Watchdog) Watch(ctx context.Context, requestRestart func(reason string) bool) {
	logger := logging.WithContext(ctx, w.logger)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		verdict := w.check(logger, first)
		first = false
		metrics.WatchdogChecks.WithLabelValues(string(verdict.Action)).Inc()
		if verdict.Action != ActionRestart {
			continue
		}

		logging.WarnWithContext(logger, "capture not making progress; restarting", "capture_stalled",
			logging.String("reason", verdict.Reason),
			logging.String(logging.FieldPath, verdict.Path),
			logging.String(logging.FieldErrorHint, "check the camera and network; ffmpeg debug output shows stream errors"),
			logging.String(logging.FieldImpact, "recording gap until the new capture writes a segment"),
		)
		requestRestart(verdict.Reason)
		return
	}
}

// Check evaluates one tick. first is true for the first tick of a cycle.
func (w *Watchdog) Check(first bool) Verdict {
	return w.check(w.logger, first)
}

func (w *Watchdog) check(logger *slog.Logger, first bool) Verdict {
	snap := w.session.Snapshot()
	now := w.now()

	if !snap.Tracking() {
		if file, ok := w.scan(logger); ok && file.ModTime.After(snap.CycleStart) {
			if w.adopt(logger, file, "initial") {
				return Verdict{Action: ActionRediscovered, Path: file.Path}
			}
		}
		if elapsed := now.Sub(snap.CycleStart); elapsed > w.fileTimeout {
			return Verdict{
				Action: ActionRestart,
				Reason: fmt.Sprintf("no segment appeared within %s", w.fileTimeout),
			}
		}
		return Verdict{Action: ActionWaiting}
	}

	current, err := segments.Stat(snap.CurrentFile)
	if err != nil {
		// Vanished: usually a rotation race, so look for its successor.
		if file, ok := w.scan(logger); ok && file.Path != snap.CurrentFile {
			if w.adopt(logger, file, "rediscovered") {
				return Verdict{Action: ActionRediscovered, Path: file.Path}
			}
		}
		if !first && now.Sub(snap.LastProgress) > w.fileTimeout {
			return Verdict{
				Action: ActionRestart,
				Path:   snap.CurrentFile,
				Reason: "tracked segment vanished and no replacement appeared",
			}
		}
		logger.Debug("tracked segment missing; waiting for a replacement",
			logging.String(logging.FieldPath, snap.CurrentFile),
		)
		return Verdict{Action: ActionWaiting, Path: snap.CurrentFile}
	}

	if current.Size > snap.LastSize {
		if !w.session.RecordProgress(snap.CurrentFile, current.Size) {
			// Switched since the snapshot; the next tick judges the new file.
			return Verdict{Action: ActionIdle, Path: current.Path}
		}
		metrics.RecordSegmentProgress(current.Size, now)
		return Verdict{Action: ActionGrowing, Path: current.Path}
	}

	if file, ok := w.scan(logger); ok && file.Path != current.Path {
		if w.adopt(logger, file, "rotation") {
			return Verdict{Action: ActionSwitched, Path: file.Path}
		}
	}

	if stalled := now.Sub(snap.LastProgress); stalled > w.stallTimeout {
		return Verdict{
			Action: ActionRestart,
			Path:   current.Path,
			Reason: fmt.Sprintf("segment has not grown for %s", stalled.Round(time.Second)),
		}
	}
	return Verdict{Action: ActionIdle, Path: current.Path}
}

func (w *Watchdog) scan(logger *slog.Logger) (segments.File, bool) {
	file, ok, err := segments.Latest(w.dir, w.ext)
	if err != nil {
		logging.WarnWithContext(logger, "segment directory scan failed", "segment_scan_failed",
			logging.String("dir", w.dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check output_dir permissions"),
			logging.String(logging.FieldImpact, "new segments are detected only through filesystem events"),
		)
		return segments.File{}, false
	}
	return file, ok
}

// adopt moves the session to file. The session refuses files created before
// the tracked one.
func (w *Watchdog) adopt(logger *slog.Logger, file segments.File, why string) bool {
	if !w.session.Advance(file.Path, file.Created, file.Size) {
		return false
	}
	metrics.SegmentSwitches.WithLabelValues("scan").Inc()
	metrics.RecordSegmentProgress(file.Size, w.now())
	logger.Info("tracking segment",
		logging.String(logging.FieldEventType, "segment_tracked"),
		logging.String(logging.FieldPath, file.Path),
		logging.String("via", why),
		logging.Int64("size", file.Size),
	)
	return true
}
