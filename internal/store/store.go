// Package store persists the pipeline's intermediate and final artifacts:
// per-strike partition files, the batch checkpoint, the per-unit audit
// journal, and the merged dataset.
package store

import (
	"context"

	"intraday/internal/domain"
)

// PartitionStore owns the per-strike partition files for the duration of a
// run. No other component may open them until the merger has run.
type PartitionStore interface {
	// Reset truncates/recreates the partition for a strike, leaving an
	// empty file with the quote schema.
	Reset(strike int) error

	// Append appends rows to a strike's partition in the order given.
	Append(strike int, rows []domain.Quote) error

	// Complete appends the end-of-file sentinel marking the partition
	// finished. It is idempotent.
	Complete(strike int) error

	// IsComplete reports whether the partition carries the sentinel.
	IsComplete(strike int) (bool, error)

	// Strikes lists the strikes that have partition files, ascending.
	Strikes() ([]int, error)
}

// UnitOutcome records the result of fetching one work unit, including
// zero-row units, so that a resumed run's starting point is auditable.
type UnitOutcome struct {
	Batch     int
	Strike    int
	Right     domain.Right
	Side      domain.Side
	WindowEnd string // RFC 3339
	Rows      int
}

// CheckpointStore durably tracks the last fully completed batch of a run.
type CheckpointStore interface {
	// Advance records batch as the last fully completed batch index for
	// the run date.
	Advance(ctx context.Context, runDate string, batch int) error

	// LastCompleted returns the last completed batch index for the run
	// date, or -1 when the run has no checkpoint yet.
	LastCompleted(ctx context.Context, runDate string) (int, error)
}

// AuditStore journals per-unit outcomes.
type AuditStore interface {
	// RecordUnit appends one unit outcome to the journal.
	RecordUnit(ctx context.Context, runDate string, outcome UnitOutcome) error

	// UnitOutcomes returns the journal for a run date in insertion order.
	UnitOutcomes(ctx context.Context, runDate string) ([]UnitOutcome, error)
}
