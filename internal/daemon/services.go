package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"tapedeck/internal/config"
	"tapedeck/internal/supervisor"
	"tapedeck/internal/watcher"
)

const (
	treeFailureThreshold = 5.0
	treeFailureDecay     = 30.0
	treeFailureBackoff   = 5 * time.Second
	// shutdownSlack covers the kill stage and reaping after the last wait.
	shutdownSlack = 5 * time.Second
)

// shutdownBudget is how long a service may take to return after its
// context ends. The capture service needs every staged-shutdown wait.
func shutdownBudget(cfg *config.Config) time.Duration {
	return config.Seconds(cfg.Shutdown.QuitTimeout) +
		config.Seconds(cfg.Shutdown.InterruptTimeout) +
		config.Seconds(cfg.Shutdown.TerminateTimeout) +
		shutdownSlack
}

func newServiceTree(logger *slog.Logger, timeout time.Duration) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: logger}
	return suture.New("tapedeck", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: treeFailureThreshold,
		FailureDecay:     treeFailureDecay,
		FailureBackoff:   treeFailureBackoff,
		Timeout:          timeout,
	})
}

// captureService runs the supervisor loop. The loop stops only on request,
// so it is never restarted.
type captureService struct {
	supervisor *supervisor.Supervisor
}

func (s *captureService) Serve(ctx context.Context) error {
	if err := s.supervisor.RunForever(ctx); err != nil {
		return fmt.Errorf("capture supervisor: %w", err)
	}
	return suture.ErrDoNotRestart
}

func (s *captureService) String() string { return "capture" }

// watcherService keeps the fsnotify watcher alive for the tree's lifetime.
type watcherService struct {
	watcher *watcher.Watcher
}

func (s *watcherService) Serve(ctx context.Context) error {
	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	<-ctx.Done()
	s.watcher.Stop()
	return ctx.Err()
}

func (s *watcherService) String() string { return "watcher" }
