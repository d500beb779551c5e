package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"intraday/internal/domain"
)

// Compile-time interface checks.
var _ CheckpointStore = (*SQLiteStore)(nil)
var _ AuditStore = (*SQLiteStore)(nil)

// SQLiteStore implements CheckpointStore and AuditStore backed by a SQLite
// database. A single file carries both the resume marker and the per-unit
// journal, so one artifact describes the whole run's progress.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	const schema = `
CREATE TABLE IF NOT EXISTS checkpoint (
	run_date   TEXT PRIMARY KEY,
	last_batch INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS unit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_date   TEXT NOT NULL,
	batch      INTEGER NOT NULL,
	strike     INTEGER NOT NULL,
	"right"    TEXT NOT NULL,
	side       TEXT NOT NULL,
	window_end TEXT NOT NULL,
	rows       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS unit_log_run_date ON unit_log (run_date);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating checkpoint db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// CheckpointStore implementation
// ---------------------------------------------------------------------------

// Advance records batch as the last fully completed batch for the run date.
func (s *SQLiteStore) Advance(ctx context.Context, runDate string, batch int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoint (run_date, last_batch) VALUES (?, ?)
ON CONFLICT (run_date) DO UPDATE SET last_batch = excluded.last_batch`,
		runDate, batch)
	if err != nil {
		return fmt.Errorf("advancing checkpoint to %d: %w", batch, err)
	}
	return nil
}

// LastCompleted returns the last completed batch index for the run date, or
// -1 when no batch has completed yet.
func (s *SQLiteStore) LastCompleted(ctx context.Context, runDate string) (int, error) {
	var batch int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_batch FROM checkpoint WHERE run_date = ?`, runDate).Scan(&batch)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("reading checkpoint: %w", err)
	}
	return batch, nil
}

// ---------------------------------------------------------------------------
// AuditStore implementation
// ---------------------------------------------------------------------------

// RecordUnit appends one unit outcome to the journal.
func (s *SQLiteStore) RecordUnit(ctx context.Context, runDate string, o UnitOutcome) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO unit_log (run_date, batch, strike, "right", side, window_end, rows)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runDate, o.Batch, o.Strike, string(o.Right), string(o.Side), o.WindowEnd, o.Rows)
	if err != nil {
		return fmt.Errorf("recording unit outcome: %w", err)
	}
	return nil
}

// UnitOutcomes returns the journal for a run date in insertion order.
func (s *SQLiteStore) UnitOutcomes(ctx context.Context, runDate string) ([]UnitOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT batch, strike, "right", side, window_end, rows
FROM unit_log WHERE run_date = ? ORDER BY id`, runDate)
	if err != nil {
		return nil, fmt.Errorf("reading unit journal: %w", err)
	}
	defer rows.Close()

	var outcomes []UnitOutcome
	for rows.Next() {
		var o UnitOutcome
		var right, side string
		if err := rows.Scan(&o.Batch, &o.Strike, &right, &side, &o.WindowEnd, &o.Rows); err != nil {
			return nil, err
		}
		o.Right, o.Side = domain.Right(right), domain.Side(side)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
