package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetSupervisorStateIsExclusive(t *testing.T) {
	SetSupervisorState("running")
	if got := testutil.ToFloat64(SupervisorState.WithLabelValues("running")); got != 1 {
		t.Fatalf("running = %v, want 1", got)
	}
	SetSupervisorState("terminating")
	if got := testutil.ToFloat64(SupervisorState.WithLabelValues("running")); got != 0 {
		t.Fatalf("running = %v, want 0", got)
	}
	if got := testutil.ToFloat64(SupervisorState.WithLabelValues("terminating")); got != 1 {
		t.Fatalf("terminating = %v, want 1", got)
	}
}

func TestRecordDeletion(t *testing.T) {
	before := testutil.ToFloat64(RetentionDeletions.WithLabelValues("max_size"))
	beforeBytes := testutil.ToFloat64(RetentionDeletedBytes)

	RecordDeletion("max_size", 1024)

	if got := testutil.ToFloat64(RetentionDeletions.WithLabelValues("max_size")); got != before+1 {
		t.Fatalf("deletions = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(RetentionDeletedBytes); got != beforeBytes+1024 {
		t.Fatalf("deleted bytes = %v, want %v", got, beforeBytes+1024)
	}
}

func TestRecordRetentionCycle(t *testing.T) {
	before := testutil.ToFloat64(RetentionFailures)
	RecordRetentionCycle(12, 4096, 2, 50*time.Millisecond)
	if got := testutil.ToFloat64(RetainedFiles); got != 12 {
		t.Fatalf("retained files = %v", got)
	}
	if got := testutil.ToFloat64(RetainedBytes); got != 4096 {
		t.Fatalf("retained bytes = %v", got)
	}
	if got := testutil.ToFloat64(RetentionFailures); got != before+2 {
		t.Fatalf("failures = %v, want %v", got, before+2)
	}
}

func TestRecordSegmentProgress(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	RecordSegmentProgress(777, at)
	if got := testutil.ToFloat64(CurrentSegmentBytes); got != 777 {
		t.Fatalf("segment bytes = %v", got)
	}
	if got := testutil.ToFloat64(LastProgress); got != float64(at.Unix()) {
		t.Fatalf("last progress = %v", got)
	}
}
