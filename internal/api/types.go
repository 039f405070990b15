package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CaptureStatus summarizes the capture supervisor.
type CaptureStatus struct {
	State         string `json:"state"`
	PID           int    `json:"pid,omitempty"`
	CycleID       string `json:"cycleId,omitempty"`
	CycleStarted  string `json:"cycleStartedAt,omitempty"`
	NominalPath   string `json:"nominalPath,omitempty"`
	Cycles        int    `json:"cycles"`
	Restarts      int    `json:"restarts"`
	LastExitCode  *int   `json:"lastExitCode,omitempty"`
	LastRestart   string `json:"lastRestart,omitempty"`
	StopRequested bool   `json:"stopRequested"`
}

// Tracking describes the segment the watchdog is following.
type Tracking struct {
	Path         string `json:"path,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	LastProgress string `json:"lastProgressAt,omitempty"`
	SizeBytes    int64  `json:"sizeBytes"`
}

// RetentionStatus reports the caps and the most recent pass.
type RetentionStatus struct {
	MaxFiles     int    `json:"maxFiles"`
	MaxBytes     int64  `json:"maxBytes"`
	LastRunAt    string `json:"lastRunAt,omitempty"`
	Deleted      int    `json:"deleted"`
	DeletedBytes int64  `json:"deletedBytes"`
	Failed       int    `json:"failed"`
	Remaining    int    `json:"remaining"`
	TotalBytes   int64  `json:"totalBytes"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	StartedAt     string             `json:"startedAt,omitempty"`
	Source        string             `json:"source"`
	OutputDir     string             `json:"outputDir"`
	HistoryDBPath string             `json:"historyDbPath"`
	LockFilePath  string             `json:"lockFilePath"`
	LogPath       string             `json:"logPath,omitempty"`
	Capture       CaptureStatus      `json:"capture"`
	Tracking      Tracking           `json:"tracking"`
	Retention     RetentionStatus    `json:"retention"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// Segment is one recorded file.
type Segment struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	SizeBytes  int64  `json:"sizeBytes"`
	CreatedAt  string `json:"createdAt,omitempty"`
	ModifiedAt string `json:"modifiedAt,omitempty"`
	Live       bool   `json:"live"`
}

// SegmentListResponse wraps the contents of the output directory.
type SegmentListResponse struct {
	Segments   []Segment `json:"segments"`
	TotalBytes int64     `json:"totalBytes"`
}

// Cycle is a journaled capture cycle.
type Cycle struct {
	ID            string `json:"id"`
	StartedAt     string `json:"startedAt"`
	EndedAt       string `json:"endedAt,omitempty"`
	DurationMS    int64  `json:"durationMs"`
	NominalPath   string `json:"nominalPath,omitempty"`
	PID           int    `json:"pid,omitempty"`
	ExitCode      int    `json:"exitCode"`
	Outcome       string `json:"outcome"`
	RestartSource string `json:"restartSource,omitempty"`
	RestartReason string `json:"restartReason,omitempty"`
	ShutdownStage string `json:"shutdownStage,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Eviction is a journaled segment deletion.
type Eviction struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	CreatedAt string `json:"createdAt,omitempty"`
	Reason    string `json:"reason"`
	DeletedAt string `json:"deletedAt"`
}

// HistorySummary aggregates the journal.
type HistorySummary struct {
	Cycles       int            `json:"cycles"`
	Outcomes     map[string]int `json:"outcomes"`
	Evictions    int            `json:"evictions"`
	EvictedBytes int64          `json:"evictedBytes"`
	LastCycleEnd string         `json:"lastCycleEndAt,omitempty"`
	LastEviction string         `json:"lastEvictionAt,omitempty"`
}

// HistoryResponse wraps journal listings.
type HistoryResponse struct {
	Summary   HistorySummary `json:"summary"`
	Cycles    []Cycle        `json:"cycles"`
	Evictions []Eviction     `json:"evictions"`
}

// PruneResponse reports an on-demand retention pass.
type PruneResponse struct {
	Retention RetentionStatus `json:"retention"`
	Deleted   []Eviction      `json:"deleted"`
	Failed    []string        `json:"failed,omitempty"`
}

// StatusLine is one labelled row of CLI status output.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}
