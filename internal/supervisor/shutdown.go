package supervisor

import (
	"log/slog"
	"time"

	"tapedeck/internal/capture"
	"tapedeck/internal/logging"
)

// Stage identifies the shutdown step that confirmed the process exit.
type Stage int

const (
	StageNone Stage = iota
	StageQuit
	StageInterrupt
	StageTerminate
	StageKill
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "already_exited"
	case StageQuit:
		return "quit"
	case StageInterrupt:
		return "interrupt"
	case StageTerminate:
		return "terminate"
	case StageKill:
		return "kill"
	default:
		return "unknown"
	}
}

// ShutdownTimeouts bounds the graceful stages. The kill stage has no bound.
type ShutdownTimeouts struct {
	QuitCommand string
	Quit        time.Duration
	Interrupt   time.Duration
	Terminate   time.Duration
}

// Shutdown escalates from the quit command to interrupt, terminate, and
// finally kill, moving on only when a stage's wait expires without exited
// being closed. Delivery failures are ignored; the wait still applies. It
// returns once exited is closed.
func Shutdown(proc capture.Process, exited <-chan struct{}, timeouts ShutdownTimeouts, logger *slog.Logger) Stage {
	select {
	case <-exited:
		return StageNone
	default:
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	steps := []struct {
		stage   Stage
		deliver func() error
		wait    time.Duration
	}{
		{StageQuit, func() error { return proc.SendQuit(timeouts.QuitCommand) }, timeouts.Quit},
		{StageInterrupt, proc.Interrupt, timeouts.Interrupt},
		{StageTerminate, proc.Terminate, timeouts.Terminate},
	}
	for _, step := range steps {
		if err := step.deliver(); err != nil {
			logger.Debug("shutdown signal not delivered",
				logging.String("stage", step.stage.String()),
				logging.Error(err),
			)
		}
		timer := time.NewTimer(step.wait)
		select {
		case <-exited:
			timer.Stop()
			return step.stage
		case <-timer.C:
		}
		logger.Info("capture still running; escalating",
			logging.String("stage", step.stage.String()),
			logging.Duration("waited", step.wait),
		)
	}

	if err := proc.Kill(); err != nil {
		logger.Debug("kill not delivered", logging.Error(err))
	}
	<-exited
	return StageKill
}
