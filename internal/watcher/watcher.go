// Package watcher reports new segment files in the output directory as soon
// as the filesystem announces them.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"tapedeck/internal/logging"
	"tapedeck/internal/segments"
)

// FileSink receives segment paths discovered by the watcher. It returns true
// when the path was adopted.
type FileSink interface {
	FileFinalized(path string) bool
}

// maxRemembered bounds the duplicate-suppression set.
const maxRemembered = 256

// Watcher delivers each matching file in dir to a FileSink at most once.
type Watcher struct {
	dir    string
	ext    string
	sink   FileSink
	logger *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	quit    chan struct{}
	done    chan struct{}
	running bool
	seen    map[string]struct{}
}

// New builds a watcher for files with extension ext (".mkv") under dir.
func New(dir, ext string, sink FileSink, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:    dir,
		ext:    ext,
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "watcher"),
		seen:   make(map[string]struct{}),
	}
}

// Start begins watching. The directory is created when missing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.fsw = fsw
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx, fsw, w.quit, w.done)

	w.logger.Info("segment watcher started",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.String("dir", w.dir),
	)
	return nil
}

// Stop closes the fsnotify watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	fsw, done := w.fsw, w.done
	w.fsw = nil
	w.running = false
	w.mu.Unlock()

	_ = fsw.Close()
	<-done
	w.logger.Info("segment watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "segment watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits (fs.inotify.max_user_watches)"),
				logging.String(logging.FieldImpact, "segment discovery falls back to directory scans"),
			)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !segments.Matches(event.Name, w.ext) {
		return
	}
	path := filepath.Clean(event.Name)
	if !w.remember(path) {
		return
	}
	if w.sink == nil {
		return
	}
	if w.sink.FileFinalized(path) {
		w.logger.Info("segment discovered",
			logging.String(logging.FieldEventType, "segment_discovered"),
			logging.String(logging.FieldPath, path),
			logging.String("source", "watcher"),
		)
	}
}

// remember returns false for paths that were already delivered.
func (w *Watcher) remember(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[path]; ok {
		return false
	}
	if len(w.seen) >= maxRemembered {
		w.seen = make(map[string]struct{})
	}
	w.seen[path] = struct{}{}
	return true
}
