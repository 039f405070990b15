package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes daemon log files matching targets whose modification
// time is older than retentionDays. Zero disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	excluded := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if abs, err := filepath.Abs(path); err == nil && path != "" {
				excluded[abs] = struct{}{}
			}
		}
	}

	removed := 0
	for _, target := range targets {
		if target.Dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(target.Dir, target.Pattern))
		if err != nil {
			continue
		}
		for _, match := range matches {
			abs, err := filepath.Abs(match)
			if err != nil {
				continue
			}
			if _, skip := excluded[abs]; skip {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(abs); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String(FieldPath, abs),
					Error(err),
					String(FieldErrorHint, "check file permissions and state_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String(FieldPath, abs), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}
