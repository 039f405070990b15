// Package metrics exposes Prometheus collectors for the recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture cycles
	CaptureCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_capture_cycles_total",
			Help: "Completed capture cycles by how they ended",
		},
		[]string{"outcome"}, // "exited", "restarted", "stopped", "spawn_failed", "panic"
	)

	CaptureRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_capture_restarts_total",
			Help: "Restart requests accepted by the supervisor",
		},
		[]string{"source"}, // "watchdog", "exit_code", "operator", "cycle_error"
	)

	CaptureExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_capture_exits_total",
			Help: "Capture process exits by exit class",
		},
		[]string{"class"},
	)

	ShutdownStages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_shutdown_stage_total",
			Help: "Staged shutdowns by the stage that confirmed exit",
		},
		[]string{"stage"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapedeck_capture_cycle_duration_seconds",
			Help:    "Wall time of capture cycles",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 6 * 3600, 24 * 3600},
		},
	)

	SupervisorState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tapedeck_supervisor_state",
			Help: "1 for the current supervisor state, 0 otherwise",
		},
		[]string{"state"},
	)

	// Watchdog
	WatchdogChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_watchdog_checks_total",
			Help: "Watchdog ticks by verdict",
		},
		[]string{"verdict"}, // "waiting", "growing", "switched", "rediscovered", "idle", "restart"
	)

	SegmentSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_segment_switches_total",
			Help: "Times the tracked segment changed, by discovery path",
		},
		[]string{"source"}, // "watcher", "scan"
	)

	CurrentSegmentBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedeck_current_segment_bytes",
			Help: "Last observed size of the tracked segment",
		},
	)

	LastProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedeck_last_progress_timestamp_seconds",
			Help: "Unix time the tracked segment last grew",
		},
	)

	// Retention
	RetentionDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedeck_retention_deletions_total",
			Help: "Segments deleted by retention, by reason",
		},
		[]string{"reason"}, // "zero_byte", "max_files", "max_size"
	)

	RetentionDeletedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapedeck_retention_deleted_bytes_total",
			Help: "Bytes reclaimed by retention",
		},
	)

	RetentionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapedeck_retention_failures_total",
			Help: "Segment deletions that failed",
		},
	)

	RetainedFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedeck_retained_files",
			Help: "Segments kept after the last retention cycle",
		},
	)

	RetainedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedeck_retained_bytes",
			Help: "Total size of segments kept after the last retention cycle",
		},
	)

	RetentionCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapedeck_retention_cycle_duration_seconds",
			Help:    "Duration of retention cycles",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// supervisorStates lists every label value of SupervisorState so the gauge
// always reports a full set.
var supervisorStates = []string{"idle", "running", "restart_requested", "exited_cleanly", "exited_with_error", "terminating"}

// SetSupervisorState marks state as current.
func SetSupervisorState(state string) {
	for _, s := range supervisorStates {
		value := 0.0
		if s == state {
			value = 1
		}
		SupervisorState.WithLabelValues(s).Set(value)
	}
}

// RecordCycle records a finished capture cycle.
func RecordCycle(outcome string, duration time.Duration) {
	CaptureCycles.WithLabelValues(outcome).Inc()
	CycleDuration.Observe(duration.Seconds())
}

// RecordSegmentProgress records the tracked segment size and growth time.
func RecordSegmentProgress(size int64, at time.Time) {
	CurrentSegmentBytes.Set(float64(size))
	LastProgress.Set(float64(at.Unix()))
}

// RecordDeletion records one successful retention deletion.
func RecordDeletion(reason string, size int64) {
	RetentionDeletions.WithLabelValues(reason).Inc()
	RetentionDeletedBytes.Add(float64(size))
}

// RecordRetentionCycle records the state left by a retention pass.
func RecordRetentionCycle(files int, bytes int64, failures int, duration time.Duration) {
	RetainedFiles.Set(float64(files))
	RetainedBytes.Set(float64(bytes))
	RetentionFailures.Add(float64(failures))
	RetentionCycleDuration.Observe(duration.Seconds())
}
