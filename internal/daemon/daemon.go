package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tapedeck/internal/capture"
	"tapedeck/internal/config"
	"tapedeck/internal/deps"
	"tapedeck/internal/history"
	"tapedeck/internal/logging"
	"tapedeck/internal/preflight"
	"tapedeck/internal/retention"
	"tapedeck/internal/segments"
	"tapedeck/internal/session"
	"tapedeck/internal/supervisor"
	"tapedeck/internal/watchdog"
	"tapedeck/internal/watcher"
)

var (
	// ErrAlreadyRunning is returned by Start when the daemon or another
	// instance holding the lock is already recording.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotRunning is returned by operations that need live loops.
	ErrNotRunning = errors.New("daemon not running")
)

// Daemon owns the recorder loops and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *history.Store
	launcher   capture.Launcher
	logPath    string
	stopBudget time.Duration

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	run       *runState
	deps      []deps.Status
}

// runState holds the components of one Start..Stop lifetime.
type runState struct {
	session    *session.Session
	supervisor *supervisor.Supervisor
	retention  *retention.Manager
	api        *apiServer
	cancel     context.CancelFunc
	treeErr    <-chan error
	done       chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	Capture       supervisor.Status
	Tracking      session.Snapshot
	Retention     retention.Result
	RetentionAt   time.Time
	RetentionRan  bool
	HistoryDBPath string
	LockFilePath  string
	LogPath       string
	Dependencies  []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithLauncher replaces the process launcher used for capture cycles.
func WithLauncher(l capture.Launcher) Option {
	return func(d *Daemon) { d.launcher = l }
}

// WithLogPath records the daemon log location for status output.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// WithStopBudget bounds how long Stop waits for the staged shutdown before
// warning. Stop still waits for the capture process to be reaped.
func WithStopBudget(budget time.Duration) Option {
	return func(d *Daemon) { d.stopBudget = budget }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and history store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		logPath:  filepath.Join(cfg.Paths.StateDir, "tapedeck.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.stopBudget <= 0 {
		d.stopBudget = shutdownBudget(cfg)
	}
	if d.launcher == nil {
		d.launcher = capture.ExecLauncher{Logger: logging.NewComponentLogger(logger, "ffmpeg")}
	}
	return d, nil
}

// Start acquires the daemon lock and launches the recorder loops.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return ErrAlreadyRunning
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: another tapedeck instance holds %s", ErrAlreadyRunning, d.lockPath)
	}

	d.deps = preflight.CheckSystemDeps(ctx, d.cfg)
	d.PruneHistory(ctx)

	run, err := d.buildRun()
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}

	tree := newServiceTree(d.logger, shutdownBudget(d.cfg))
	tree.Add(&captureService{supervisor: run.supervisor})
	tree.Add(&watcherService{watcher: watcher.New(d.cfg.Paths.OutputDir, d.cfg.SegmentExtension(), run.session, d.logger)})
	tree.Add(run.retention)
	if run.api != nil {
		tree.Add(run.api)
	}

	treeCtx, cancel := context.WithCancel(ctx)
	run.cancel = cancel
	run.treeErr = tree.ServeBackground(treeCtx)
	run.done = make(chan struct{})

	d.run = run
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("tapedeck daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
	)
	return nil
}

func (d *Daemon) buildRun() (*runState, error) {
	cfg := d.cfg
	opts := capture.OptionsFromConfig(cfg)
	sess := session.New()

	monitor := watchdog.New(watchdog.Options{
		Dir:          cfg.Paths.OutputDir,
		Ext:          opts.Extension(),
		PollInterval: config.Seconds(cfg.Watchdog.PollInterval),
		StallTimeout: config.Seconds(cfg.Watchdog.StallTimeout),
		FileTimeout:  config.Seconds(cfg.Watchdog.FileTimeout),
		Session:      sess,
		Logger:       d.logger,
	})
	sup := supervisor.New(supervisor.Options{
		Capture:  opts,
		Launcher: d.launcher,
		Session:  sess,
		Monitor:  monitor,
		Recorder: d.store,
		Shutdown: supervisor.ShutdownTimeouts{
			QuitCommand: opts.QuitCommand,
			Quit:        config.Seconds(cfg.Shutdown.QuitTimeout),
			Interrupt:   config.Seconds(cfg.Shutdown.InterruptTimeout),
			Terminate:   config.Seconds(cfg.Shutdown.TerminateTimeout),
		},
		Backoff: supervisor.BackoffPolicy{
			Initial:    config.Seconds(cfg.Restart.BackoffInitial),
			Max:        config.Seconds(cfg.Restart.BackoffMax),
			ResetAfter: config.Seconds(cfg.Restart.BackoffResetAfter),
		},
		Logger: d.logger,
	})
	ret := retention.New(retention.Options{
		Dir:      cfg.Paths.OutputDir,
		Ext:      opts.Extension(),
		Interval: config.Seconds(cfg.Retention.Interval),
		MaxFiles: cfg.Retention.MaxFiles,
		MaxBytes: cfg.MaxSizeBytes(),
		LiveFile: sess.CurrentFile,
		Recorder: d.store,
		Logger:   d.logger,
	})

	api, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		return nil, err
	}
	return &runState{session: sess, supervisor: sup, retention: ret, api: api}, nil
}

// Stop ends the capture through the staged shutdown, stops the remaining
// loops, and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() || d.run == nil {
		return
	}
	run := d.run
	budget := d.stopBudget

	// The capture goes first so the last segment is finalized before the
	// watcher and retention loops disappear. The process is always reaped
	// before the daemon reports stopped.
	run.supervisor.RequestStop()
	select {
	case <-run.supervisor.Done():
	case <-time.After(budget):
		logging.WarnWithContext(d.logger, "capture did not stop in time; waiting for it to be reaped", "daemon_stop_slow",
			logging.Duration("budget", budget),
			logging.String(logging.FieldErrorHint, "check for a hung ffmpeg process"),
			logging.String(logging.FieldImpact, "daemon shutdown is delayed until the capture process exits"),
		)
		<-run.supervisor.Done()
	}

	run.cancel()
	select {
	case err := <-run.treeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Debug("service tree exited", logging.Error(err))
		}
	case <-time.After(budget):
	}

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file in state_dir if starts keep failing"),
			logging.String(logging.FieldImpact, "next start may report another instance"),
		)
	}
	d.running.Store(false)
	close(run.done)
	d.logger.Info("tapedeck daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Done is closed when the current run has been stopped. It returns nil when
// the daemon was never started.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run == nil {
		return nil
	}
	return d.run.done
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// current returns the active run, or nil when stopped.
func (d *Daemon) current() *runState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}
	return d.run
}

// Status returns the daemon's runtime snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		PID:           os.Getpid(),
		HistoryDBPath: d.store.Path(),
		LockFilePath:  d.lockPath,
		LogPath:       d.logPath,
	}
	d.mu.Lock()
	status.Dependencies = append([]deps.Status(nil), d.deps...)
	status.StartedAt = d.startedAt
	d.mu.Unlock()
	if len(status.Dependencies) == 0 {
		status.Dependencies = preflight.CheckSystemDeps(ctx, d.cfg)
	}

	run := d.current()
	if run == nil {
		return status
	}
	status.Running = true
	status.Capture = run.supervisor.Status()
	status.Tracking = run.session.Snapshot()
	status.Retention, status.RetentionAt, status.RetentionRan = run.retention.Last()
	return status
}

// RequestRestart asks the supervisor for a new capture cycle.
func (d *Daemon) RequestRestart(reason string) (bool, error) {
	run := d.current()
	if run == nil {
		return false, ErrNotRunning
	}
	if reason == "" {
		reason = "operator request"
	}
	return run.supervisor.RequestRestart(reason), nil
}

// Prune runs a retention cycle now.
func (d *Daemon) Prune(ctx context.Context) (retention.Result, error) {
	run := d.current()
	if run == nil {
		return retention.Result{}, ErrNotRunning
	}
	return run.retention.RunCycle(ctx)
}

// Segments lists the recorded files and the one currently being written.
func (d *Daemon) Segments() ([]segments.File, string, error) {
	files, err := segments.List(d.cfg.Paths.OutputDir, d.cfg.SegmentExtension())
	if err != nil {
		return nil, "", err
	}
	live := ""
	if run := d.current(); run != nil {
		live = run.session.CurrentFile()
	}
	return files, live, nil
}

// History returns journaled cycles and evictions, newest first.
func (d *Daemon) History(ctx context.Context, limit int) (history.Summary, []history.CycleRecord, []history.EvictionRecord, error) {
	summary, err := d.store.Summarize(ctx)
	if err != nil {
		return summary, nil, nil, err
	}
	cycles, err := d.store.Cycles(ctx, limit)
	if err != nil {
		return summary, nil, nil, err
	}
	evictions, err := d.store.Evictions(ctx, limit)
	if err != nil {
		return summary, nil, nil, err
	}
	return summary, cycles, evictions, nil
}

// LogPath returns the daemon log file path.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr returns the HTTP API listen address once bound.
func (d *Daemon) APIAddr() string {
	run := d.current()
	if run == nil || run.api == nil {
		return ""
	}
	return run.api.Addr()
}

// PruneHistory drops journal rows older than logging.retention_days.
func (d *Daemon) PruneHistory(ctx context.Context) {
	days := d.cfg.Logging.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := d.store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(d.logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and disk space"),
			logging.String(logging.FieldImpact, "journal keeps growing"),
		)
		return
	}
	if removed > 0 {
		d.logger.Info("history pruned",
			logging.String(logging.FieldEventType, "history_pruned"),
			logging.Int64("rows", removed),
			logging.Int("retention_days", days),
		)
	}
}
