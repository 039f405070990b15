package daemon

import (
	"context"

	"tapedeck/internal/api"
	"tapedeck/internal/capture"
)

// APIStatus converts Status into the wire format shared by IPC and HTTP.
func (d *Daemon) APIStatus(ctx context.Context) api.DaemonStatus {
	status := d.Status(ctx)
	out := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		Source:        capture.OptionsFromConfig(d.cfg).RedactedSource(),
		OutputDir:     d.cfg.Paths.OutputDir,
		HistoryDBPath: status.HistoryDBPath,
		LockFilePath:  status.LockFilePath,
		LogPath:       status.LogPath,
		Dependencies:  api.FromDependencies(status.Dependencies),
		Retention: api.FromRetentionResult(status.Retention, status.RetentionAt, status.RetentionRan,
			d.cfg.Retention.MaxFiles, d.cfg.MaxSizeBytes()),
	}
	if status.Running {
		out.StartedAt = api.FormatTime(status.StartedAt)
		out.Capture = api.FromSupervisorStatus(status.Capture)
		out.Tracking = api.FromSnapshot(status.Tracking)
	} else {
		out.Capture = api.CaptureStatus{State: "stopped"}
	}
	return out
}

// APIHistory returns the journal in wire format.
func (d *Daemon) APIHistory(ctx context.Context, limit int) (api.HistoryResponse, error) {
	summary, cycles, evictions, err := d.History(ctx, limit)
	if err != nil {
		return api.HistoryResponse{}, err
	}
	return api.HistoryResponse{
		Summary:   api.FromSummary(summary),
		Cycles:    api.FromCycleRecords(cycles),
		Evictions: api.FromEvictionRecords(evictions),
	}, nil
}

// APIPrune runs a retention cycle and reports it in wire format.
func (d *Daemon) APIPrune(ctx context.Context) (api.PruneResponse, error) {
	result, err := d.Prune(ctx)
	if err != nil {
		return api.PruneResponse{}, err
	}
	run := d.current()
	resp := api.PruneResponse{Deleted: api.FromEvictions(result.Deleted)}
	if run != nil {
		last, at, ok := run.retention.Last()
		resp.Retention = api.FromRetentionResult(last, at, ok, d.cfg.Retention.MaxFiles, d.cfg.MaxSizeBytes())
	}
	for _, failure := range result.Failed {
		resp.Failed = append(resp.Failed, failure.Path)
	}
	return resp, nil
}
