package intraday

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"intraday/internal/store"
	"intraday/internal/util"
)

// testRig wires a Collector over temp-dir stores, a fake session, and a
// limiter whose sleeps are recorded instead of slept.
type testRig struct {
	sess    *fakeSession
	parts   *store.ParquetStore
	sqlite  *store.SQLiteStore
	limiter *util.FixedWindowLimiter
	outBase string
	sleeps  *int
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	parts, err := store.NewParquetStore(filepath.Join(t.TempDir(), "dl"))
	if err != nil {
		t.Fatal(err)
	}
	sqlite, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "intraday.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlite.Close() })

	sleeps := 0
	limiter := util.NewFixedWindowLimiter(1000, 610*time.Second)
	limiter.SetSleepFunc(func(_ context.Context, _ time.Duration) error {
		sleeps++
		return nil
	})

	return &testRig{
		sess:    &fakeSession{openPrice: 5403.2},
		parts:   parts,
		sqlite:  sqlite,
		limiter: limiter,
		outBase: filepath.Join(t.TempDir(), "intraday"),
		sleeps:  &sleeps,
	}
}

// collector builds a Collector over a small plan: strikes 5400-5410 in
// groups of 2, two 30-minute windows from 10:00 to 11:00 — four batches of
// 24 units total.
func (r *testRig) collector(resumeFrom int) *Collector {
	planner := &Planner{
		Date:           testDate(),
		Increment:      5,
		StartStrike:    5400,
		EndStrike:      5410,
		IntervalLength: 30 * time.Minute,
		BatchStrikes:   2,
	}
	planner.SessionStart = planner.at(10, 0)
	planner.SessionEnd = planner.at(11, 0)

	fetcher := NewFetcher(r.sess, "SPXW", testDate(), time.Minute, nil)

	return NewCollector(r.sess, planner, fetcher, r.parts, r.sqlite, r.sqlite, r.limiter, Options{
		RunDate:    "2025-06-17",
		Underlying: "SPX",
		OutBase:    r.outBase,
		Format:     store.FormatBinary,
		ResumeFrom: resumeFrom,
	}, nil)
}

const (
	rigBatches      = 4  // 2 windows x 2 strike groups
	rigUnits        = 24 // 3 strikes x 4 series x 2 windows
	rigRowsPerUnit  = 30 // 30m window at 1m resolution
	rigExpectedRows = rigUnits * rigRowsPerUnit
)

func artifactRows(t *testing.T, outBase string) int {
	t.Helper()
	data, err := os.ReadFile(outBase + ".bin")
	if err != nil {
		t.Fatal(err)
	}
	if len(data)%20 != 0 {
		t.Fatalf("artifact size %d is not a whole number of records", len(data))
	}
	return len(data) / 20
}

func TestCollectorFullRun(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.collector(-1).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if got := artifactRows(t, rig.outBase); got != rigExpectedRows {
		t.Errorf("artifact has %d rows, want %d", got, rigExpectedRows)
	}

	// Partitions are consumed by the merge.
	strikes, err := rig.parts.Strikes()
	if err != nil {
		t.Fatal(err)
	}
	if len(strikes) != 0 {
		t.Errorf("partitions left after run: %v", strikes)
	}

	// Checkpoint sits at the last batch.
	last, err := rig.sqlite.LastCompleted(ctx, "2025-06-17")
	if err != nil {
		t.Fatal(err)
	}
	if last != rigBatches-1 {
		t.Errorf("checkpoint = %d, want %d", last, rigBatches-1)
	}

	// One cooldown per batch, and one fetch per unit.
	if *rig.sleeps != rigBatches {
		t.Errorf("%d cooldowns, want %d", *rig.sleeps, rigBatches)
	}
	if rig.sess.fetches != rigUnits {
		t.Errorf("%d series fetches, want %d", rig.sess.fetches, rigUnits)
	}

	// Every unit is journaled, including its row count.
	outcomes, err := rig.sqlite.UnitOutcomes(ctx, "2025-06-17")
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != rigUnits {
		t.Errorf("journal has %d entries, want %d", len(outcomes), rigUnits)
	}
	for _, o := range outcomes {
		if o.Rows != rigRowsPerUnit {
			t.Errorf("unit %+v journaled %d rows, want %d", o, o.Rows, rigRowsPerUnit)
		}
	}
}

func TestCollectorRerunAfterMergeIsIdempotent(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.collector(-1).Run(ctx); err != nil {
		t.Fatal(err)
	}
	rows := artifactRows(t, rig.outBase)
	fetches := rig.sess.fetches

	// Re-running the completed day fetches nothing and leaves the
	// artifact as is.
	if err := rig.collector(-1).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if rig.sess.fetches != fetches {
		t.Errorf("rerun issued %d extra fetches", rig.sess.fetches-fetches)
	}
	if got := artifactRows(t, rig.outBase); got != rows {
		t.Errorf("rerun changed artifact rows from %d to %d", rows, got)
	}
}

func TestCollectorResumeAfterFatalFetch(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	// Fail on the first fetch of batch 2 (after 2 batches x 8 units).
	sessionErr := errors.New("disconnected")
	rig.sess.fetchErr = sessionErr
	rig.sess.failAt = 17

	err := rig.collector(-1).Run(ctx)
	if !errors.Is(err, sessionErr) {
		t.Fatalf("Run() error = %v, want session error", err)
	}

	// Checkpoint reflects the last fully completed batch; partitions are
	// left intact.
	last, err := rig.sqlite.LastCompleted(ctx, "2025-06-17")
	if err != nil {
		t.Fatal(err)
	}
	if last != 1 {
		t.Errorf("checkpoint after abort = %d, want 1", last)
	}
	strikes, err := rig.parts.Strikes()
	if err != nil {
		t.Fatal(err)
	}
	if len(strikes) == 0 {
		t.Error("partitions deleted on abort")
	}
	if _, err := os.Stat(rig.outBase + ".bin"); !os.IsNotExist(err) {
		t.Error("artifact written despite abort")
	}

	// Recover the session and resume from the checkpoint: every unit of
	// batches >= 2 runs exactly once more, and the merged dataset is
	// complete with no duplicates.
	rig.sess.fetchErr = nil
	if err := rig.collector(-1).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if got := artifactRows(t, rig.outBase); got != rigExpectedRows {
		t.Errorf("resumed artifact has %d rows, want %d", got, rigExpectedRows)
	}
}

func TestCollectorResumeOverride(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.collector(-1).Run(ctx); err != nil {
		t.Fatal(err)
	}

	// An explicit resume index beats the checkpoint: the whole day is
	// re-collected from batch 0.
	fetches := rig.sess.fetches
	if err := rig.collector(0).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if rig.sess.fetches != fetches+rigUnits {
		t.Errorf("override rerun fetched %d units, want %d", rig.sess.fetches-fetches, rigUnits)
	}
	if got := artifactRows(t, rig.outBase); got != rigExpectedRows {
		t.Errorf("override rerun artifact has %d rows, want %d", got, rigExpectedRows)
	}
}

func TestCollectorCancelDuringCooldown(t *testing.T) {
	rig := newTestRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel during the first batch's cooldown. The batch still commits
	// and checkpoints; the run stops at the boundary.
	rig.limiter.SetSleepFunc(func(sctx context.Context, _ time.Duration) error {
		cancel()
		return sctx.Err()
	})

	err := rig.collector(-1).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	last, cerr := rig.sqlite.LastCompleted(context.Background(), "2025-06-17")
	if cerr != nil {
		t.Fatal(cerr)
	}
	if last != 0 {
		t.Errorf("checkpoint = %d, want batch 0 committed", last)
	}
	// Only batch 0's units were fetched.
	if rig.sess.fetches != 8 {
		t.Errorf("%d fetches before stop, want 8", rig.sess.fetches)
	}
}

func TestCollectorAbortsWhenOpeningPriceUnavailable(t *testing.T) {
	rig := newTestRig(t)
	rig.sess.openErr = errors.New("no daily bar")

	err := rig.collector(-1).Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded without an opening price")
	}
	if rig.sess.fetches != 0 {
		t.Errorf("%d series fetches despite startup failure, want 0", rig.sess.fetches)
	}
}
