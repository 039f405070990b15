package history_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"tapedeck/internal/history"
	"tapedeck/internal/retention"
	"tapedeck/internal/supervisor"
	"tapedeck/internal/testsupport"
)

func TestRecordAndListCycles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	cycles := []supervisor.Cycle{
		{
			ID:            "cycle-a",
			Started:       base,
			Ended:         base.Add(6 * time.Hour),
			NominalPath:   "/rec/2026-04-01_08-00-00.mkv",
			Pid:           4100,
			ExitCode:      1,
			Outcome:       supervisor.OutcomeExited,
			RestartSource: supervisor.SourceExitCode,
			RestartReason: "exit code 1",
		},
		{
			ID:            "cycle-b",
			Started:       base.Add(6*time.Hour + time.Second),
			Ended:         base.Add(7 * time.Hour),
			Pid:           4200,
			ExitCode:      255,
			Outcome:       supervisor.OutcomeRestarted,
			RestartSource: supervisor.SourceWatchdog,
			RestartReason: "segment has not grown for 11s",
			ShutdownStage: supervisor.StageQuit,
		},
	}
	for _, cycle := range cycles {
		if err := store.RecordCycle(ctx, cycle); err != nil {
			t.Fatalf("RecordCycle(%s): %v", cycle.ID, err)
		}
	}

	records, err := store.Cycles(ctx, 0)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(records))
	}
	newest := records[0]
	if newest.ID != "cycle-b" {
		t.Fatalf("expected newest first, got %s", newest.ID)
	}
	if newest.ShutdownStage != "quit" || newest.RestartSource != supervisor.SourceWatchdog {
		t.Fatalf("unexpected record: %#v", newest)
	}
	if newest.Duration != 59*time.Minute+59*time.Second {
		t.Fatalf("unexpected duration %s", newest.Duration)
	}
	if !newest.Started.Equal(cycles[1].Started) {
		t.Fatalf("started mismatch: %s vs %s", newest.Started, cycles[1].Started)
	}
	if records[1].ShutdownStage != "" {
		t.Fatalf("exited cycle should have no shutdown stage, got %q", records[1].ShutdownStage)
	}

	limited, err := store.Cycles(ctx, 1)
	if err != nil {
		t.Fatalf("Cycles(limit): %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestRecordEvictionsAndSummarize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	at := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	evictions := []retention.Eviction{
		{Path: "/rec/a.mkv", Size: 0, Reason: retention.ReasonEmpty, At: at},
		{Path: "/rec/b.mkv", Size: 1 << 20, Reason: retention.ReasonCount, At: at.Add(time.Minute), Created: at.Add(-time.Hour)},
		{Path: "/rec/c.mkv", Size: 2 << 20, Reason: retention.ReasonSize, At: at.Add(2 * time.Minute)},
	}
	for _, e := range evictions {
		if err := store.RecordEviction(ctx, e); err != nil {
			t.Fatalf("RecordEviction(%s): %v", e.Path, err)
		}
	}
	if err := store.RecordCycle(ctx, supervisor.Cycle{
		ID: "c1", Started: at, Ended: at.Add(time.Hour), Outcome: supervisor.OutcomeStopped,
	}); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}

	records, err := store.Evictions(ctx, 2)
	if err != nil {
		t.Fatalf("Evictions: %v", err)
	}
	if len(records) != 2 || records[0].Path != "/rec/c.mkv" || records[1].Path != "/rec/b.mkv" {
		t.Fatalf("unexpected evictions: %#v", records)
	}
	if !records[1].Created.Equal(at.Add(-time.Hour)) {
		t.Fatalf("created not preserved: %s", records[1].Created)
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Evictions != 3 || summary.EvictedBytes != 3<<20 {
		t.Fatalf("unexpected eviction totals: %#v", summary)
	}
	if summary.Cycles != 1 || summary.Outcomes["stopped"] != 1 {
		t.Fatalf("unexpected cycle totals: %#v", summary)
	}
	if !summary.LastEviction.Equal(at.Add(2 * time.Minute)) {
		t.Fatalf("unexpected last eviction %s", summary.LastEviction)
	}
}

func TestPruneRemovesOldRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, ended := range []time.Time{old, recent} {
		cycle := supervisor.Cycle{
			ID:      []string{"old", "recent"}[i],
			Started: ended.Add(-time.Hour),
			Ended:   ended,
			Outcome: supervisor.OutcomeExited,
		}
		if err := store.RecordCycle(ctx, cycle); err != nil {
			t.Fatalf("RecordCycle: %v", err)
		}
	}
	if err := store.RecordEviction(ctx, retention.Eviction{Path: "/rec/x.mkv", Reason: retention.ReasonSize, At: old}); err != nil {
		t.Fatalf("RecordEviction: %v", err)
	}

	removed, err := store.Prune(ctx, recent.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows removed, got %d", removed)
	}
	records, err := store.Cycles(ctx, 0)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(records) != 1 || records[0].ID != "recent" {
		t.Fatalf("unexpected remaining cycles: %#v", records)
	}
}

func TestReopenKeepsJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := store.RecordCycle(ctx, supervisor.Cycle{ID: "persisted", Outcome: supervisor.OutcomeExited}); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenHistory(t, cfg)
	if reopened.Path() != cfg.HistoryPath() {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
	records, err := reopened.Cycles(ctx, 0)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(records) != 1 || records[0].ID != "persisted" {
		t.Fatalf("unexpected cycles after reopen: %#v", records)
	}
}

func TestSchemaMismatchIsReported(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := forceSchemaVersion(cfg.HistoryPath(), 99); err != nil {
		t.Fatalf("force version: %v", err)
	}
	_, err := history.OpenPath(cfg.HistoryPath())
	if !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func forceSchemaVersion(path string, version int) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec("UPDATE schema_version SET version = ?", version)
	return err
}
