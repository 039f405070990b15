package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"tapedeck/internal/api"
	"tapedeck/internal/config"
	"tapedeck/internal/history"
	"tapedeck/internal/retention"
	"tapedeck/internal/segments"
)

// ErrDaemonRunning indicates an offline operation found the daemon lock held.
var ErrDaemonRunning = errors.New("daemon is running")

// OfflineSegments lists the output directory without a daemon.
func OfflineSegments(cfg *config.Config) (api.SegmentListResponse, error) {
	files, err := segments.List(cfg.Paths.OutputDir, cfg.SegmentExtension())
	if err != nil {
		return api.SegmentListResponse{}, err
	}
	return api.FromSegments(files, ""), nil
}

// OfflineHistory reads the journal without a daemon. A missing journal is
// reported as empty rather than created.
func OfflineHistory(ctx context.Context, cfg *config.Config, limit int) (api.HistoryResponse, error) {
	if _, err := os.Stat(cfg.HistoryPath()); errors.Is(err, os.ErrNotExist) {
		return api.HistoryResponse{Summary: api.HistorySummary{Outcomes: map[string]int{}}}, nil
	}
	store, err := history.OpenPath(cfg.HistoryPath())
	if err != nil {
		return api.HistoryResponse{}, err
	}
	defer store.Close()

	summary, err := store.Summarize(ctx)
	if err != nil {
		return api.HistoryResponse{}, err
	}
	cycles, err := store.Cycles(ctx, limit)
	if err != nil {
		return api.HistoryResponse{}, err
	}
	evictions, err := store.Evictions(ctx, limit)
	if err != nil {
		return api.HistoryResponse{}, err
	}
	return api.HistoryResponse{
		Summary:   api.FromSummary(summary),
		Cycles:    api.FromCycleRecords(cycles),
		Evictions: api.FromEvictionRecords(evictions),
	}, nil
}

// OfflinePrune runs one retention cycle while holding the daemon lock, so it
// never races a running recorder.
func OfflinePrune(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.PruneResponse, error) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return api.PruneResponse{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return api.PruneResponse{}, ErrDaemonRunning
	}
	defer func() { _ = lock.Unlock() }()

	store, err := history.Open(cfg)
	if err != nil {
		return api.PruneResponse{}, err
	}
	defer store.Close()

	manager := retention.New(retention.Options{
		Dir:      cfg.Paths.OutputDir,
		Ext:      cfg.SegmentExtension(),
		MaxFiles: cfg.Retention.MaxFiles,
		MaxBytes: cfg.MaxSizeBytes(),
		Recorder: store,
		Logger:   logger,
	})
	result, err := manager.RunCycle(ctx)
	if err != nil {
		return api.PruneResponse{}, err
	}
	resp := api.PruneResponse{
		Retention: api.FromRetentionResult(result, time.Now(), true, cfg.Retention.MaxFiles, cfg.MaxSizeBytes()),
		Deleted:   api.FromEvictions(result.Deleted),
	}
	for _, failure := range result.Failed {
		resp.Failed = append(resp.Failed, failure.Path)
	}
	return resp, nil
}
