package preflight

import (
	"context"

	"tapedeck/internal/config"
	"tapedeck/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Output volume", cfg.Paths.OutputDir, cfg.MaxSizeBytes()),
		FFmpegResult(CheckSystemDeps(ctx, cfg)[0]),
		CheckSource(ctx, cfg.Capture.SourceURL),
	}
	return results
}

// CheckSystemDeps evaluates the external binaries for cfg. Both the daemon
// and the CLI status command use it so the requirement list lives in one
// place.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return []deps.Status{deps.CheckFFmpeg(ctx, cfg.Capture.FFmpegPath)}
}

// FFmpegResult adapts a dependency status to a preflight result.
func FFmpegResult(status deps.Status) Result {
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	detail := status.Command
	if status.Version != "" {
		detail = status.Version
	}
	return Result{Name: status.Name, Passed: true, Detail: detail}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
