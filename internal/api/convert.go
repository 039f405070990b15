package api

import (
	"time"

	"tapedeck/internal/deps"
	"tapedeck/internal/history"
	"tapedeck/internal/retention"
	"tapedeck/internal/segments"
	"tapedeck/internal/session"
	"tapedeck/internal/supervisor"
)

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime reverses FormatTime. Unparseable values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FromSupervisorStatus converts the supervisor view.
func FromSupervisorStatus(status supervisor.Status) CaptureStatus {
	out := CaptureStatus{
		State:         string(status.State),
		PID:           status.Pid,
		CycleID:       status.CycleID,
		CycleStarted:  FormatTime(status.CycleStarted),
		NominalPath:   status.NominalPath,
		Cycles:        status.Cycles,
		Restarts:      status.Restarts,
		LastRestart:   status.LastRestart,
		StopRequested: status.StopRequested,
	}
	if status.LastExitCode != nil {
		code := *status.LastExitCode
		out.LastExitCode = &code
	}
	return out
}

// FromSnapshot converts the session's tracked segment.
func FromSnapshot(snap session.Snapshot) Tracking {
	if !snap.Tracking() {
		return Tracking{}
	}
	return Tracking{
		Path:         snap.CurrentFile,
		CreatedAt:    FormatTime(snap.CurrentCreated),
		LastProgress: FormatTime(snap.LastProgress),
		SizeBytes:    snap.LastSize,
	}
}

// FromRetentionResult converts a retention pass. ok is false before the
// first pass, in which case only the caps are reported.
func FromRetentionResult(result retention.Result, at time.Time, ok bool, maxFiles int, maxBytes int64) RetentionStatus {
	out := RetentionStatus{MaxFiles: maxFiles, MaxBytes: maxBytes}
	if !ok {
		return out
	}
	out.LastRunAt = FormatTime(at)
	out.Deleted = len(result.Deleted)
	out.DeletedBytes = result.DeletedBytes()
	out.Failed = len(result.Failed)
	out.Remaining = result.Remaining
	out.TotalBytes = result.TotalBytes
	return out
}

// FromEvictions converts the deletions of a retention pass.
func FromEvictions(evictions []retention.Eviction) []Eviction {
	out := make([]Eviction, 0, len(evictions))
	for _, e := range evictions {
		out = append(out, Eviction{
			Path:      e.Path,
			SizeBytes: e.Size,
			CreatedAt: FormatTime(e.Created),
			Reason:    string(e.Reason),
			DeletedAt: FormatTime(e.At),
		})
	}
	return out
}

// FromSegments converts a directory listing. live marks the file currently
// being written.
func FromSegments(files []segments.File, live string) SegmentListResponse {
	out := SegmentListResponse{Segments: make([]Segment, 0, len(files))}
	for _, f := range files {
		out.Segments = append(out.Segments, Segment{
			Path:       f.Path,
			Name:       f.Name(),
			SizeBytes:  f.Size,
			CreatedAt:  FormatTime(f.Created),
			ModifiedAt: FormatTime(f.ModTime),
			Live:       live != "" && f.Path == live,
		})
		out.TotalBytes += f.Size
	}
	return out
}

// FromCycleRecords converts journaled cycles.
func FromCycleRecords(records []history.CycleRecord) []Cycle {
	out := make([]Cycle, 0, len(records))
	for _, rec := range records {
		out = append(out, Cycle{
			ID:            rec.ID,
			StartedAt:     FormatTime(rec.Started),
			EndedAt:       FormatTime(rec.Ended),
			DurationMS:    rec.Duration.Milliseconds(),
			NominalPath:   rec.NominalPath,
			PID:           rec.Pid,
			ExitCode:      rec.ExitCode,
			Outcome:       rec.Outcome,
			RestartSource: rec.RestartSource,
			RestartReason: rec.RestartReason,
			ShutdownStage: rec.ShutdownStage,
			Error:         rec.Error,
		})
	}
	return out
}

// FromEvictionRecords converts journaled deletions.
func FromEvictionRecords(records []history.EvictionRecord) []Eviction {
	out := make([]Eviction, 0, len(records))
	for _, rec := range records {
		out = append(out, Eviction{
			Path:      rec.Path,
			SizeBytes: rec.Size,
			CreatedAt: FormatTime(rec.Created),
			Reason:    rec.Reason,
			DeletedAt: FormatTime(rec.Deleted),
		})
	}
	return out
}

// FromSummary converts the journal aggregate.
func FromSummary(summary history.Summary) HistorySummary {
	outcomes := make(map[string]int, len(summary.Outcomes))
	for k, v := range summary.Outcomes {
		outcomes[k] = v
	}
	return HistorySummary{
		Cycles:       summary.Cycles,
		Outcomes:     outcomes,
		Evictions:    summary.Evictions,
		EvictedBytes: summary.EvictedBytes,
		LastCycleEnd: FormatTime(summary.LastCycleEnd),
		LastEviction: FormatTime(summary.LastEviction),
	}
}

// FromDependencies converts binary checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		}
	}
	return out
}
