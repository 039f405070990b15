// Package supervisor owns the capture process lifecycle: it spawns one
// capture per cycle, reacts to exits and restart requests, runs the staged
// shutdown, and loops until stopped.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"tapedeck/internal/capture"
	"tapedeck/internal/logging"
	"tapedeck/internal/metrics"
	"tapedeck/internal/session"
)

// Monitor watches one cycle until ctx is cancelled. requestRestart asks the
// supervisor to end the cycle and reports whether the request was new.
type Monitor interface {
	Watch(ctx context.Context, requestRestart func(reason string) bool)
}

// CycleRecorder persists finished cycles.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, cycle Cycle) error
}

// Cycle summarizes one spawn-to-exit lifetime of the capture process.
type Cycle struct {
	ID            string
	Started       time.Time
	Ended         time.Time
	NominalPath   string
	Pid           int
	ExitCode      int
	Outcome       Outcome
	RestartSource string
	RestartReason string
	ShutdownStage Stage
	Error         string
}

// Duration returns the wall time of the cycle.
func (c Cycle) Duration() time.Duration {
	return c.Ended.Sub(c.Started)
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State         State
	Pid           int
	CycleID       string
	CycleStarted  time.Time
	NominalPath   string
	Cycles        int
	Restarts      int
	LastExitCode  *int
	LastRestart   string
	StopRequested bool
}

// Options wires a Supervisor.
type Options struct {
	Capture  capture.Options
	Launcher capture.Launcher
	Session  *session.Session
	Monitor  Monitor
	Recorder CycleRecorder
	Shutdown ShutdownTimeouts
	Backoff  BackoffPolicy
	Logger   *slog.Logger
}

// minFailureDelay keeps a missing binary or unwritable output directory from
// spinning the loop.
const minFailureDelay = time.Second

type restartRequest struct {
	source string
	reason string
}

// Supervisor runs capture cycles until RequestStop is called or the context
// passed to RunForever ends.
type Supervisor struct {
	capture  capture.Options
	launcher capture.Launcher
	session  *session.Session
	monitor  Monitor
	recorder CycleRecorder
	shutdown ShutdownTimeouts
	backoff  BackoffPolicy
	logger   *slog.Logger
	now      func() time.Time

	failureDelay time.Duration

	restart  chan restartRequest
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once

	mu     sync.Mutex
	status Status
}

// New constructs a supervisor in the idle state.
func New(opts Options) *Supervisor {
	if opts.Launcher == nil {
		opts.Launcher = capture.ExecLauncher{Logger: opts.Logger}
	}
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Shutdown.QuitCommand == "" {
		opts.Shutdown.QuitCommand = opts.Capture.QuitCommand
	}
	s := &Supervisor{
		capture:  opts.Capture,
		launcher: opts.Launcher,
		session:  opts.Session,
		monitor:  opts.Monitor,
		recorder: opts.Recorder,
		shutdown: opts.Shutdown,
		backoff:  opts.Backoff,
		logger:   logging.NewComponentLogger(opts.Logger, "supervisor"),
		now:      time.Now,
		restart:  make(chan restartRequest, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		status:   Status{State: StateIdle},

		failureDelay: minFailureDelay,
	}
	metrics.SetSupervisorState(string(StateIdle))
	return s
}

// Session returns the recording session shared with the watcher and watchdog.
func (s *Supervisor) Session() *session.Session {
	return s.session
}

// RequestRestart asks the supervisor to end the current cycle and start a
// new one. Repeated requests before the supervisor consumes the first have
// no further effect; the return value reports whether this call was new.
func (s *Supervisor) RequestRestart(reason string) bool {
	return s.requestRestart(SourceOperator, reason)
}

// RestartPending reports whether a restart request is waiting.
func (s *Supervisor) RestartPending() bool {
	return len(s.restart) > 0
}

func (s *Supervisor) requestRestart(source, reason string) bool {
	select {
	case s.restart <- restartRequest{source: source, reason: reason}:
		metrics.CaptureRestarts.WithLabelValues(source).Inc()
		s.logger.Info("restart requested",
			logging.String(logging.FieldEventType, "restart_requested"),
			logging.String("source", source),
			logging.String("reason", reason),
		)
		return true
	default:
		s.logger.Debug("restart already pending",
			logging.String("source", source),
			logging.String("reason", reason),
		)
		return false
	}
}

func (s *Supervisor) takeRestart() (restartRequest, bool) {
	select {
	case req := <-s.restart:
		return req, true
	default:
		return restartRequest{}, false
	}
}

// RequestStop ends the current cycle through the staged shutdown and makes
// RunForever return. It is safe to call more than once.
func (s *Supervisor) RequestStop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.status.StopRequested = true
		s.mu.Unlock()
		close(s.stop)
		s.logger.Info("stop requested", logging.String(logging.FieldEventType, "stop_requested"))
	})
}

func (s *Supervisor) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Done is closed when RunForever has returned and the last capture process
// has been reaped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Status returns a copy of the supervisor status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if status.LastExitCode != nil {
		code := *status.LastExitCode
		status.LastExitCode = &code
	}
	return status
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
	metrics.SetSupervisorState(string(state))
}

// RunForever runs capture cycles until a stop is requested or ctx ends. It
// returns only after the last capture process has been reaped.
func (s *Supervisor) RunForever(ctx context.Context) error {
	defer s.doneOnce.Do(func() { close(s.done) })
	defer s.setState(StateIdle)

	// Context cancellation is a stop request.
	go func() {
		select {
		case <-ctx.Done():
			s.RequestStop()
		case <-s.done:
		}
	}()

	bo := s.backoff.newBackOff()
	s.logger.Info("capture supervisor started",
		logging.String(logging.FieldEventType, "supervisor_started"),
		logging.String("source", s.capture.RedactedSource()),
		logging.String("output_dir", s.capture.OutputDir),
	)
	for {
		if s.stopping() {
			break
		}
		cycle := s.runCycle(ctx)
		s.finishCycle(ctx, cycle)
		if s.stopping() {
			break
		}

		if s.backoff.ResetAfter > 0 && cycle.Duration() >= s.backoff.ResetAfter {
			bo.Reset()
		}
		delay := bo.NextBackOff()
		if (cycle.Outcome == OutcomeSpawnFailed || cycle.Outcome == OutcomePanic) && delay < s.failureDelay {
			delay = s.failureDelay
		}
		if delay <= 0 {
			continue
		}
		s.logger.Info("waiting before next capture cycle",
			logging.String(logging.FieldEventType, "restart_backoff"),
			logging.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.restart:
			timer.Stop()
		case <-s.stop:
			timer.Stop()
		}
	}
	s.logger.Info("capture supervisor stopped", logging.String(logging.FieldEventType, "supervisor_stopped"))
	return nil
}

func (s *Supervisor) runCycle(ctx context.Context) (cycle Cycle) {
	cycle = Cycle{ID: uuid.NewString(), Started: s.now(), ExitCode: -1}
	logger := s.logger.With(logging.String(logging.FieldCycleID, cycle.ID))

	defer func() {
		if r := recover(); r != nil {
			cycle.Outcome = OutcomePanic
			cycle.Error = fmt.Sprint(r)
			logging.ErrorWithContext(logger, "capture cycle failed unexpectedly", "cycle_panic",
				logging.String("panic", cycle.Error),
				logging.String(logging.FieldErrorHint, "report this with the surrounding log lines"),
			)
			s.requestRestart(SourceCycleError, "panic: "+cycle.Error)
		}
		cycle.Ended = s.now()
	}()

	// Requests raised between cycles belong to the previous cycle.
	s.takeRestart()

	if err := os.MkdirAll(s.capture.OutputDir, 0o755); err != nil {
		return s.spawnFailed(logger, cycle, fmt.Errorf("create output directory: %w", err))
	}
	cycle.NominalPath = s.capture.NominalPath(cycle.Started)
	s.session.Reset(cycle.ID)

	proc, err := s.launcher.Launch(ctx, s.capture)
	if err != nil {
		return s.spawnFailed(logger, cycle, err)
	}
	cycle.Pid = proc.Pid()

	s.mu.Lock()
	s.status.Pid = cycle.Pid
	s.status.CycleID = cycle.ID
	s.status.CycleStarted = cycle.Started
	s.status.NominalPath = cycle.NominalPath
	s.status.Cycles++
	s.mu.Unlock()
	s.setState(StateRunning)

	logger.Info("capture started",
		logging.String(logging.FieldEventType, "capture_started"),
		logging.Int("pid", cycle.Pid),
		logging.String("nominal_path", cycle.NominalPath),
	)

	exited := make(chan struct{})
	var exitCode int
	var waitErr error
	go func() {
		exitCode, waitErr = proc.Wait()
		close(exited)
	}()

	monitorCtx, cancelMonitor := context.WithCancel(logging.WithCycleID(ctx, cycle.ID))
	var monitorWG sync.WaitGroup
	if s.monitor != nil {
		monitorWG.Add(1)
		go func() {
			defer monitorWG.Done()
			s.monitor.Watch(monitorCtx, func(reason string) bool {
				return s.requestRestart(SourceWatchdog, reason)
			})
		}()
	}

	// Whatever ends the cycle, the process is reaped before returning.
	defer func() {
		cancelMonitor()
		monitorWG.Wait()
		stage := Shutdown(proc, exited, s.shutdown, logger)
		if stage != StageNone {
			cycle.ShutdownStage = stage
			metrics.ShutdownStages.WithLabelValues(stage.String()).Inc()
			logger.Info("capture stopped",
				logging.String(logging.FieldEventType, "capture_shutdown"),
				logging.String("stage", stage.String()),
				logging.Int("exit_code", exitCode),
			)
		}
		cycle.ExitCode = exitCode
		if waitErr != nil {
			cycle.Error = waitErr.Error()
		}
		s.mu.Lock()
		s.status.Pid = 0
		code := exitCode
		s.status.LastExitCode = &code
		s.mu.Unlock()
	}()

	select {
	case <-exited:
		cycle.Outcome = OutcomeExited
		s.handleExit(logger, exitCode, waitErr)
	case req := <-s.restart:
		cycle.Outcome = OutcomeRestarted
		cycle.RestartSource, cycle.RestartReason = req.source, req.reason
		s.setState(StateRestartRequested)
		cancelMonitor()
		s.setState(StateTerminating)
	case <-s.stop:
		cycle.Outcome = OutcomeStopped
		cancelMonitor()
		s.setState(StateTerminating)
	}
	return cycle
}

func (s *Supervisor) handleExit(logger *slog.Logger, code int, waitErr error) {
	class := capture.Classify(code)
	metrics.CaptureExits.WithLabelValues(class.String()).Inc()
	attrs := []logging.Attr{
		logging.Int("exit_code", code),
		logging.String("exit_class", class.String()),
	}
	if waitErr != nil {
		attrs = append(attrs, logging.Error(waitErr))
	}

	switch {
	case s.stopping():
		s.setState(StateExitedCleanly)
		logger.Info("capture exited during stop", logging.Args(attrs...)...)
	case class == capture.ExitAbnormal:
		s.setState(StateExitedWithError)
		logging.WarnWithContext(logger, "capture exited abnormally", "capture_exit_abnormal",
			append(attrs,
				logging.String(logging.FieldErrorHint, "check the source URL and the ffmpeg debug output"),
				logging.String(logging.FieldImpact, "recording gap until the capture restarts"),
			)...,
		)
		s.requestRestart(SourceExitCode, fmt.Sprintf("exit code %d", code))
	default:
		s.setState(StateExitedCleanly)
		logger.Info("capture exited", append(logging.Args(attrs...), logging.String(logging.FieldEventType, "capture_exited"))...)
	}
}

func (s *Supervisor) spawnFailed(logger *slog.Logger, cycle Cycle, err error) Cycle {
	cycle.Outcome = OutcomeSpawnFailed
	cycle.Error = err.Error()
	logging.ErrorWithContext(logger, "capture could not start", "capture_spawn_failed",
		logging.Error(err),
		logging.String("ffmpeg", s.capture.FFmpegPath),
		logging.String(logging.FieldErrorHint, "verify capture.ffmpeg_path and output_dir permissions"),
	)
	s.requestRestart(SourceCycleError, "spawn failed")
	return cycle
}

func (s *Supervisor) finishCycle(ctx context.Context, cycle Cycle) {
	if req, ok := s.takeRestart(); ok && cycle.RestartSource == "" {
		cycle.RestartSource, cycle.RestartReason = req.source, req.reason
	}
	if cycle.RestartSource != "" {
		s.mu.Lock()
		s.status.Restarts++
		s.status.LastRestart = cycle.RestartSource + ": " + cycle.RestartReason
		s.mu.Unlock()
	}
	s.setState(StateIdle)
	metrics.RecordCycle(string(cycle.Outcome), cycle.Duration())

	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordCycle(context.WithoutCancel(ctx), cycle); err != nil {
		logging.WarnWithContext(s.logger, "cycle journal write failed", "history_write_failed",
			logging.String(logging.FieldCycleID, cycle.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
			logging.String(logging.FieldImpact, "cycle missing from history"),
		)
	}
}
