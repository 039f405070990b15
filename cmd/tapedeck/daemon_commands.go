package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/api"
	"tapedeck/internal/daemonctl"
	"tapedeck/internal/ipc"
)

const (
	stopGracePeriod  = 30 * time.Second
	startWaitTimeout = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tapedeck daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				startWaitTimeout,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			case daemonctl.StartStateRequested:
				fmt.Fprintln(stdout, result.Message)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop recording and terminate the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg := ctx.configValue()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg.PIDPath(), cfg.LockPath(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stopping capture...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in %s; killed pid %d\n", stopGracePeriod, result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartDaemon bool
	var restartReason string
	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Start a new capture cycle (or restart the daemon with --daemon)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if !restartDaemon {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Restart(restartReason)
					if err != nil {
						return err
					}
					if resp.Requested {
						fmt.Fprintln(stdout, "Capture restart requested")
					} else {
						fmt.Fprintln(stdout, "Capture restart already pending")
					}
					return nil
				})
			}

			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			result, err := daemonctl.Restart(
				ctx.socketPath(),
				cfg.PIDPath(),
				cfg.LockPath(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				stopGracePeriod,
				startWaitTimeout,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.Start.PID)
			case daemonctl.StartStateRequested:
				fmt.Fprintln(stdout, result.Start.Message)
			}
			return nil
		},
	}
	restartCmd.Flags().BoolVar(&restartDaemon, "daemon", false, "Restart the whole daemon process instead of the capture")
	restartCmd.Flags().StringVar(&restartReason, "reason", "", "Reason recorded in the cycle history")
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override logging.level for the restarted daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorder, camera, and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snap)
			}
			stdout := cmd.OutOrStdout()
			renderStatus(stdout, snap, time.Now(), shouldColorize(stdout))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status snapshot as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(out io.Writer, snap *daemonctl.Snapshot, now time.Time, colorize bool) {
	line := func(label string, kind statusKind, detail string) string {
		return renderStatusLine(label, kind, detail, colorize)
	}
	fromLines := func(items []api.StatusLine) []string {
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, line(item.Label, statusKindFromSeverity(item.Severity), item.Detail))
		}
		return lines
	}

	writeSection(out, "System Status", fromLines(snap.SystemChecks), colorize)

	if snap.Status.Running {
		capture := snap.Status.Capture
		lines := []string{
			line("Source", statusInfo, valueOrDash(snap.Status.Source)),
			line("Cycle", statusInfo, fmt.Sprintf("%s (started %s)", valueOrDash(shortID(capture.CycleID)), api.RelativeSince(capture.CycleStarted, now))),
			line("Cycles", statusInfo, fmt.Sprintf("%d total, %d restarts", capture.Cycles, capture.Restarts)),
		}
		if capture.LastExitCode != nil {
			lines = append(lines, line("Last exit", statusInfo, fmt.Sprintf("code %d", *capture.LastExitCode)))
		}
		if capture.LastRestart != "" {
			lines = append(lines, line("Last restart", statusWarn, capture.LastRestart))
		}
		tracking := snap.Status.Tracking
		if tracking.Path != "" {
			lines = append(lines, line("Recording", statusOK, fmt.Sprintf("%s (%s, grew %s)",
				tracking.Path, formatBytes(tracking.SizeBytes), api.RelativeSince(tracking.LastProgress, now))))
		} else {
			lines = append(lines, line("Recording", statusWarn, "no segment yet"))
		}
		writeSection(out, "Capture", lines, colorize)
	}

	writeSection(out, "Dependencies", dependencyLines(snap.Status.Dependencies, snap.DependencySummary, colorize), colorize)
	writeSection(out, "Directories", fromLines(snap.Directories), colorize)

	storage := []string{
		line("Segments", statusInfo, fmt.Sprintf("%d files, %s", len(snap.Segments.Segments), formatBytes(snap.Segments.TotalBytes))),
	}
	if ret := snap.Status.Retention; ret.LastRunAt != "" {
		kind := statusOK
		if ret.Failed > 0 {
			kind = statusWarn
		}
		storage = append(storage, line("Last prune", kind, fmt.Sprintf("%s: deleted %d (%s), %d failed",
			api.RelativeSince(ret.LastRunAt, now), ret.Deleted, formatBytes(ret.DeletedBytes), ret.Failed)))
	}
	writeSection(out, "Storage", storage, colorize)

	hist := []string{
		line("Cycles", statusInfo, fmt.Sprintf("%d journaled", snap.History.Cycles)),
		line("Evictions", statusInfo, fmt.Sprintf("%d (%s)", snap.History.Evictions, formatBytes(snap.History.EvictedBytes))),
	}
	if snap.LastCycle != nil {
		hist = append(hist, line("Last cycle", statusInfo, fmt.Sprintf("%s, ended %s",
			api.CycleOutcomeLabel(*snap.LastCycle), api.RelativeSince(snap.LastCycle.EndedAt, now))))
	}
	writeSection(out, "History", hist, colorize)
}

func dependencyLines(deps []api.DependencyStatus, summary api.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = dep.Version
			}
			if dep.Command != "" {
				message = fmt.Sprintf("%s (command: %s)", message, dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, statusKindFromSeverity(api.DependencySeverity(dep)), detail, colorize))
	}
	return lines
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
}
