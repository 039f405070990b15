package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"tapedeck/internal/api"
	"tapedeck/internal/capture"
	"tapedeck/internal/config"
	"tapedeck/internal/ipc"
	"tapedeck/internal/preflight"
)

// Snapshot is everything `tapedeck status` renders. It is filled from IPC
// when the daemon answers and from disk otherwise.
type Snapshot struct {
	Online            bool                    `json:"online"`
	Status            api.DaemonStatus        `json:"status"`
	Segments          api.SegmentListResponse `json:"segments"`
	History           api.HistorySummary      `json:"history"`
	LastCycle         *api.Cycle              `json:"lastCycle,omitempty"`
	SystemChecks      []api.StatusLine        `json:"systemChecks"`
	Directories       []api.StatusLine        `json:"directories"`
	DependencySummary api.DependencySummary   `json:"dependencySummary"`
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for segments, history, and dependencies.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{}

	if client, err := ipc.Dial(socketPath); err == nil {
		fillOnline(snap, client)
		_ = client.Close()
	}

	if !snap.Online {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		fillOffline(queryCtx, snap, cfg)
	}

	if len(snap.Status.Dependencies) == 0 {
		snap.Status.Dependencies = ResolveDependencies(ctx, cfg)
	}
	snap.SystemChecks = BuildSystemChecks(ctx, cfg, snap.Status)
	snap.Directories = BuildDirectoryChecks(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Status.Dependencies)
	return snap, nil
}

func fillOnline(snap *Snapshot, client *ipc.Client) {
	status, err := client.Status()
	if err != nil {
		return
	}
	snap.Online = true
	snap.Status = *status
	if segs, err := client.Segments(); err == nil {
		snap.Segments = *segs
	}
	if hist, err := client.History(1); err == nil {
		snap.History = hist.Summary
		if len(hist.Cycles) > 0 {
			last := hist.Cycles[0]
			snap.LastCycle = &last
		}
	}
}

func fillOffline(ctx context.Context, snap *Snapshot, cfg *config.Config) {
	snap.Status = api.DaemonStatus{
		Source:        capture.OptionsFromConfig(cfg).RedactedSource(),
		OutputDir:     cfg.Paths.OutputDir,
		HistoryDBPath: cfg.HistoryPath(),
		LockFilePath:  cfg.LockPath(),
		Capture:       api.CaptureStatus{State: "stopped"},
		Retention: api.RetentionStatus{
			MaxFiles: cfg.Retention.MaxFiles,
			MaxBytes: cfg.MaxSizeBytes(),
		},
	}
	if segs, err := OfflineSegments(cfg); err == nil {
		snap.Segments = segs
	}
	hist, err := OfflineHistory(ctx, cfg, 1)
	if err != nil {
		return
	}
	snap.History = hist.Summary
	if len(hist.Cycles) > 0 {
		last := hist.Cycles[0]
		snap.LastCycle = &last
	}
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(ctx context.Context, cfg *config.Config) []api.DependencyStatus {
	if cfg == nil {
		return nil
	}
	return api.FromDependencies(preflight.CheckSystemDeps(ctx, cfg))
}

// BuildSystemChecks resolves status lines that combine runtime state and
// config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, status api.DaemonStatus) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 4)
	if status.Running {
		lines = append(lines, api.StatusLine{Label: "Tapedeck", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		lines = append(lines, captureLine(status.Capture))
	} else {
		lines = append(lines, api.StatusLine{Label: "Tapedeck", Severity: "warn", Detail: "Not running (run `tapedeck start`)"})
	}

	camera := preflight.CheckSource(ctx, cfg.Capture.SourceURL)
	severity := "ok"
	if !camera.Passed {
		severity = "warn"
	}
	lines = append(lines, api.StatusLine{Label: camera.Name, Severity: severity, Detail: camera.Detail})

	lines = append(lines, api.StatusLine{
		Label:    "Retention",
		Severity: "info",
		Detail:   retentionDetail(cfg),
	})
	return lines
}

func captureLine(c api.CaptureStatus) api.StatusLine {
	detail := c.State
	if c.PID > 0 {
		detail = fmt.Sprintf("%s (ffmpeg pid %d)", detail, c.PID)
	}
	if c.Restarts > 0 {
		detail = fmt.Sprintf("%s, %d restarts", detail, c.Restarts)
	}
	return api.StatusLine{Label: "Capture", Severity: api.StateSeverity(c.State), Detail: detail}
}

func retentionDetail(cfg *config.Config) string {
	files := "unlimited files"
	if cfg.Retention.MaxFiles > 0 {
		files = fmt.Sprintf("%d files", cfg.Retention.MaxFiles)
	}
	size := "unlimited size"
	if limit := cfg.MaxSizeBytes(); limit > 0 {
		size = humanize.IBytes(uint64(limit))
	}
	return fmt.Sprintf("Keep at most %s and %s every %s", files, size, config.Seconds(cfg.Retention.Interval))
}

// BuildDirectoryChecks resolves configured directory readiness.
func BuildDirectoryChecks(cfg *config.Config) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 3)
	results := []preflight.Result{
		preflight.CheckDirectoryAccess("Output", cfg.Paths.OutputDir),
		preflight.CheckDirectoryAccess("State", cfg.Paths.StateDir),
	}
	if results[0].Passed {
		results = append(results, preflight.CheckFreeSpace("Free space", cfg.Paths.OutputDir, cfg.MaxSizeBytes()))
	}
	for _, result := range results {
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{
			Label:    result.Name,
			Severity: severity,
			Detail:   result.Detail,
		})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []api.DependencyStatus) api.DependencySummary {
	if len(deps) == 0 {
		return api.DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return api.DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
