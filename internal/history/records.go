package history

import (
	"context"
	"fmt"
	"time"

	"tapedeck/internal/retention"
	"tapedeck/internal/supervisor"
)

// CycleRecord is a journaled capture cycle.
type CycleRecord struct {
	ID            string        `json:"id"`
	Started       time.Time     `json:"started"`
	Ended         time.Time     `json:"ended"`
	Duration      time.Duration `json:"duration"`
	NominalPath   string        `json:"nominal_path,omitempty"`
	Pid           int           `json:"pid,omitempty"`
	ExitCode      int           `json:"exit_code"`
	Outcome       string        `json:"outcome"`
	RestartSource string        `json:"restart_source,omitempty"`
	RestartReason string        `json:"restart_reason,omitempty"`
	ShutdownStage string        `json:"shutdown_stage,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// EvictionRecord is a journaled segment deletion.
type EvictionRecord struct {
	ID      int64     `json:"id"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
	Reason  string    `json:"reason"`
	Deleted time.Time `json:"deleted"`
}

// Summary aggregates the journal.
type Summary struct {
	Cycles       int            `json:"cycles"`
	Outcomes     map[string]int `json:"outcomes"`
	Evictions    int            `json:"evictions"`
	EvictedBytes int64          `json:"evicted_bytes"`
	LastCycleEnd time.Time      `json:"last_cycle_end"`
	LastEviction time.Time      `json:"last_eviction"`
}

// RecordCycle implements supervisor.CycleRecorder.
func (s *Store) RecordCycle(ctx context.Context, cycle supervisor.Cycle) error {
	stage := ""
	if cycle.ShutdownStage != supervisor.StageNone {
		stage = cycle.ShutdownStage.String()
	}
	err := s.exec(ctx, `INSERT OR REPLACE INTO cycles (
		id, started_at, ended_at, duration_ms, nominal_path, pid, exit_code,
		outcome, restart_source, restart_reason, shutdown_stage, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cycle.ID,
		formatTime(cycle.Started),
		formatTime(cycle.Ended),
		cycle.Duration().Milliseconds(),
		cycle.NominalPath,
		cycle.Pid,
		cycle.ExitCode,
		string(cycle.Outcome),
		cycle.RestartSource,
		cycle.RestartReason,
		stage,
		cycle.Error,
	)
	if err != nil {
		return fmt.Errorf("record cycle %s: %w", cycle.ID, err)
	}
	return nil
}

// RecordEviction implements retention.EvictionRecorder.
func (s *Store) RecordEviction(ctx context.Context, eviction retention.Eviction) error {
	err := s.exec(ctx, `INSERT INTO evictions (path, size_bytes, created_at, reason, deleted_at)
		VALUES (?, ?, ?, ?, ?)`,
		eviction.Path,
		eviction.Size,
		formatTime(eviction.Created),
		string(eviction.Reason),
		formatTime(eviction.At),
	)
	if err != nil {
		return fmt.Errorf("record eviction %s: %w", eviction.Path, err)
	}
	return nil
}

// Cycles returns the most recent cycles, newest first. limit <= 0 returns all.
func (s *Store) Cycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	query := `SELECT id, started_at, ended_at, duration_ms, nominal_path, pid, exit_code,
		outcome, restart_source, restart_reason, shutdown_stage, error
		FROM cycles ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var (
			rec            CycleRecord
			started, ended string
			durationMillis int64
		)
		if err := rows.Scan(&rec.ID, &started, &ended, &durationMillis, &rec.NominalPath, &rec.Pid,
			&rec.ExitCode, &rec.Outcome, &rec.RestartSource, &rec.RestartReason, &rec.ShutdownStage, &rec.Error); err != nil {
			return nil, err
		}
		rec.Started = parseTime(started)
		rec.Ended = parseTime(ended)
		rec.Duration = time.Duration(durationMillis) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Evictions returns the most recent deletions, newest first. limit <= 0 returns all.
func (s *Store) Evictions(ctx context.Context, limit int) ([]EvictionRecord, error) {
	query := `SELECT id, path, size_bytes, created_at, reason, deleted_at
		FROM evictions ORDER BY deleted_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evictions: %w", err)
	}
	defer rows.Close()

	var records []EvictionRecord
	for rows.Next() {
		var (
			rec              EvictionRecord
			created, deleted string
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Size, &created, &rec.Reason, &deleted); err != nil {
			return nil, err
		}
		rec.Created = parseTime(created)
		rec.Deleted = parseTime(deleted)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Summarize aggregates cycle outcomes and eviction totals.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	ctx = ensureContext(ctx)
	summary := Summary{Outcomes: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM cycles GROUP BY outcome`)
	if err != nil {
		return summary, fmt.Errorf("cycle stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return summary, err
		}
		summary.Outcomes[outcome] = count
		summary.Cycles += count
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	var lastEnd, lastEviction string
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(ended_at), '') FROM cycles`).Scan(&lastEnd); err != nil {
		return summary, fmt.Errorf("last cycle: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(size_bytes), 0), COALESCE(MAX(deleted_at), '') FROM evictions`,
	).Scan(&summary.Evictions, &summary.EvictedBytes, &lastEviction); err != nil {
		return summary, fmt.Errorf("eviction stats: %w", err)
	}
	summary.LastCycleEnd = parseTime(lastEnd)
	summary.LastEviction = parseTime(lastEviction)
	return summary, nil
}

// Prune deletes journal rows older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	stamp := formatTime(cutoff)
	var removed int64
	for _, query := range []string{
		`DELETE FROM cycles WHERE ended_at < ?`,
		`DELETE FROM evictions WHERE deleted_at < ?`,
	} {
		var n int64
		err := retryOnBusy(ctx, func() error {
			res, err := s.db.ExecContext(ctx, query, stamp)
			if err != nil {
				return err
			}
			n, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return removed, fmt.Errorf("prune history: %w", err)
		}
		removed += n
	}
	return removed, nil
}
