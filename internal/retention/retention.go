// Package retention bounds the disk usage of the recording directory.
//
// Each cycle deletes zero-byte crash artifacts, then evicts the oldest
// segments by creation time until both the file-count cap and the total-size
// cap hold. The segment currently being written is never a candidate.
package retention

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"tapedeck/internal/logging"
	"tapedeck/internal/metrics"
	"tapedeck/internal/segments"
)

// Reason names the rule that selected a file for deletion.
type Reason string

const (
	ReasonEmpty Reason = "empty"
	ReasonCount Reason = "max_files"
	ReasonSize  Reason = "max_size"
)

// Eviction describes one deleted segment.
type Eviction struct {
	Path    string
	Size    int64
	Created time.Time
	Reason  Reason
	At      time.Time
}

// Failure describes a deletion that did not happen.
type Failure struct {
	Path   string
	Reason Reason
	Err    error
}

// Result summarizes a retention cycle.
type Result struct {
	Deleted    []Eviction
	Failed     []Failure
	Skipped    string
	Remaining  int
	TotalBytes int64
}

// DeletedBytes sums the sizes of deleted segments.
func (r Result) DeletedBytes() int64 {
	var total int64
	for _, e := range r.Deleted {
		total += e.Size
	}
	return total
}

// EvictionRecorder persists deletions.
type EvictionRecorder interface {
	RecordEviction(ctx context.Context, eviction Eviction) error
}

// Options configures a Manager.
type Options struct {
	Dir      string
	Ext      string
	Interval time.Duration
	// MaxFiles and MaxBytes disable their rule when zero.
	MaxFiles int
	MaxBytes int64
	// LiveFile returns the segment being written, or "".
	LiveFile func() string
	// Remove defaults to os.Remove.
	Remove   func(path string) error
	Recorder EvictionRecorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Manager runs retention cycles.
type Manager struct {
	dir      string
	ext      string
	interval time.Duration
	maxFiles int
	maxBytes int64
	liveFile func() string
	remove   func(string) error
	recorder EvictionRecorder
	logger   *slog.Logger
	now      func() time.Time

	cycleMu sync.Mutex
	lastMu  sync.Mutex
	last    *Result
	lastAt  time.Time
}

// New builds a Manager.
func New(opts Options) *Manager {
	if opts.Remove == nil {
		opts.Remove = os.Remove
	}
	if opts.LiveFile == nil {
		opts.LiveFile = func() string { return "" }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		dir:      opts.Dir,
		ext:      opts.Ext,
		interval: opts.Interval,
		maxFiles: opts.MaxFiles,
		maxBytes: opts.MaxBytes,
		liveFile: opts.LiveFile,
		remove:   opts.Remove,
		recorder: opts.Recorder,
		logger:   logging.NewComponentLogger(opts.Logger, "retention"),
		now:      opts.Now,
	}
}

// String names the service in supervisor logs.
func (m *Manager) String() string { return "retention" }

// Serve runs a cycle immediately and then once per interval until ctx ends.
func (m *Manager) Serve(ctx context.Context) error {
	m.logger.Info("retention started",
		logging.String(logging.FieldEventType, "retention_started"),
		logging.String("dir", m.dir),
		logging.Duration("interval", m.interval),
		logging.Int("max_files", m.maxFiles),
		logging.String("max_size", humanize.IBytes(uint64(max(m.maxBytes, 0)))),
	)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.RunCycle(ctx); err != nil {
			logging.WarnWithContext(m.logger, "retention cycle failed", "retention_cycle_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check output_dir exists and is readable"),
				logging.String(logging.FieldImpact, "disk usage is not bounded until the next cycle"),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Last returns the most recent cycle result and when it finished.
func (m *Manager) Last() (Result, time.Time, bool) {
	m.lastMu.Lock()
	defer m.lastMu.Unlock()
	if m.last == nil {
		return Result{}, time.Time{}, false
	}
	return *m.last, m.lastAt, true
}

// RunCycle performs one retention pass. Only a listing failure is returned;
// deletion failures are reported in Result.Failed.
func (m *Manager) RunCycle(ctx context.Context) (Result, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := m.now()
	files, err := segments.List(m.dir, m.ext)
	if err != nil {
		return Result{}, err
	}

	var result Result
	live := m.liveFile()
	candidates := make([]segments.File, 0, len(files))
	// The live segment counts toward both caps but is never evicted.
	var liveCount int
	var liveBytes int64
	for _, file := range files {
		if live != "" && samePath(file.Path, live) {
			result.Skipped = file.Path
			liveCount++
			liveBytes += file.Size
			continue
		}
		if file.Size == 0 {
			m.delete(ctx, &result, file, ReasonEmpty)
			continue
		}
		candidates = append(candidates, file)
	}
	segments.SortByCreated(candidates)

	count := len(candidates) + liveCount
	total := segments.TotalSize(candidates) + liveBytes
	next := 0
	for m.maxFiles > 0 && count > m.maxFiles && next < len(candidates) {
		file := candidates[next]
		next++
		if m.delete(ctx, &result, file, ReasonCount) {
			count--
			total -= file.Size
		}
	}
	for m.maxBytes > 0 && total > m.maxBytes && next < len(candidates) {
		file := candidates[next]
		next++
		if m.delete(ctx, &result, file, ReasonSize) {
			count--
			total -= file.Size
		}
	}
	result.Remaining = count
	result.TotalBytes = total

	elapsed := m.now().Sub(start)
	metrics.RecordRetentionCycle(count, total, len(result.Failed), elapsed)
	if len(result.Deleted) > 0 || len(result.Failed) > 0 {
		m.logger.Info("retention cycle complete",
			logging.String(logging.FieldEventType, "retention_cycle"),
			logging.Int("deleted", len(result.Deleted)),
			logging.String("freed", humanize.IBytes(uint64(result.DeletedBytes()))),
			logging.Int("failed", len(result.Failed)),
			logging.Int("remaining", count),
			logging.String("retained", humanize.IBytes(uint64(max(total, 0)))),
		)
	} else {
		m.logger.Debug("retention cycle complete",
			logging.Int("remaining", count),
			logging.Int64("retained_bytes", total),
		)
	}

	m.lastMu.Lock()
	snapshot := result
	m.last = &snapshot
	m.lastAt = m.now()
	m.lastMu.Unlock()
	return result, nil
}

func (m *Manager) delete(ctx context.Context, result *Result, file segments.File, reason Reason) bool {
	if err := m.remove(file.Path); err != nil {
		result.Failed = append(result.Failed, Failure{Path: file.Path, Reason: reason, Err: err})
		hint := "check permissions on output_dir"
		if errors.Is(err, fs.ErrNotExist) {
			hint = "the file was removed by something else"
		}
		logging.WarnWithContext(m.logger, "segment deletion failed", "segment_delete_failed",
			logging.String(logging.FieldPath, file.Path),
			logging.String("reason", string(reason)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "the file stays on disk and still counts toward the caps"),
		)
		return false
	}

	eviction := Eviction{
		Path:    file.Path,
		Size:    file.Size,
		Created: file.Created,
		Reason:  reason,
		At:      m.now(),
	}
	result.Deleted = append(result.Deleted, eviction)
	metrics.RecordDeletion(string(reason), file.Size)
	m.logger.Info("segment deleted",
		logging.String(logging.FieldEventType, "segment_deleted"),
		logging.String(logging.FieldPath, file.Path),
		logging.String("reason", string(reason)),
		logging.String("size", humanize.IBytes(uint64(file.Size))),
	)
	if m.recorder != nil {
		if err := m.recorder.RecordEviction(context.WithoutCancel(ctx), eviction); err != nil {
			logging.WarnWithContext(m.logger, "failed to journal deletion", "history_write_failed",
				logging.String(logging.FieldPath, file.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the history database in state_dir"),
				logging.String(logging.FieldImpact, "the deletion is missing from tapedeck history"),
			)
		}
	}
	return true
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
