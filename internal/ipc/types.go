package ipc

import "tapedeck/internal/api"

// serviceName is the JSON-RPC receiver name.
const serviceName = "Tapedeck"

// StopRequest stops the recorder and the daemon process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status payload.
type StatusResponse = api.DaemonStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// RestartRequest asks for a new capture cycle.
type RestartRequest struct {
	Reason string `json:"reason"`
}

// RestartResponse reports whether the request was new.
type RestartResponse struct {
	Requested bool   `json:"requested"`
	Message   string `json:"message"`
}

// PruneRequest runs a retention cycle now.
type PruneRequest struct{}

// PruneResponse reports the retention cycle.
type PruneResponse = api.PruneResponse

// SegmentsRequest lists the output directory.
type SegmentsRequest struct{}

// SegmentsResponse lists recorded files.
type SegmentsResponse = api.SegmentListResponse

// HistoryRequest fetches journal rows. Limit <= 0 returns everything.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse carries journal rows.
type HistoryResponse = api.HistoryResponse

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component,omitempty"`
	CycleID    string `json:"cycle_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
