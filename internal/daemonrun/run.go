package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tapedeck/internal/capture"
	"tapedeck/internal/config"
	"tapedeck/internal/daemon"
	"tapedeck/internal/history"
	"tapedeck/internal/ipc"
	"tapedeck/internal/logging"
	"tapedeck/internal/preflight"
)

// housekeepingInterval spaces log cleanup and journal pruning on long runs.
const housekeepingInterval = 12 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the tapedeck daemon and blocks until it is signalled or stopped
// over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		runCfg.Logging.Level = level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.StateDir, fmt.Sprintf("tapedeck-%s.log", runID))
	logger, err := logging.NewFromConfig(&runCfg, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.StateDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update tapedeck.log link: %v\n", err)
	}
	cleanupLogs(logger, cfg, logPath)
	logPreflight(signalCtx, logger, cfg)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := daemon.New(cfg, store, logger, daemon.WithLogPath(logPath))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	// Stop owns shutdown ordering, so the daemon must not see the signal
	// context cancel underneath it.
	if err := d.Start(context.WithoutCancel(signalCtx)); err != nil {
		return err
	}
	defer d.Stop()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	runCtx, stopRun := context.WithCancel(signalCtx)
	defer stopRun()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stopRun()
		select {
		case <-gctx.Done():
			logger.Info("tapedeck daemon shutting down",
				logging.String(logging.FieldEventType, "daemon_shutdown"),
			)
			d.Stop()
		case <-d.Done():
			logger.Info("tapedeck daemon stopped on request",
				logging.String(logging.FieldEventType, "daemon_shutdown"),
			)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				cleanupLogs(logger, cfg, logPath)
				d.PruneHistory(gctx)
			}
		}
	})
	return g.Wait()
}

func cleanupLogs(logger *slog.Logger, cfg *config.Config, current string) {
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.StateDir, Pattern: "tapedeck-*.log", Exclude: []string{current}},
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "tapedeck.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logPreflight records the startup checks. Failures are warnings: the
// supervisor keeps retrying the camera and the watchdog reports stalls.
func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run `tapedeck status` for details"),
			logging.String(logging.FieldImpact, "recording may fail until the check passes"),
		)
	}
	logger.Info("preflight snapshot",
		logging.String(logging.FieldEventType, "preflight_snapshot"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
		logging.String("source", capture.OptionsFromConfig(cfg).RedactedSource()),
		logging.String("output_dir", cfg.Paths.OutputDir),
	)
}
