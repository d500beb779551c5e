package intraday

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"intraday/internal/domain"
	"intraday/internal/gather"
	"intraday/internal/session"
	"intraday/internal/store"
	"intraday/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*Collector)(nil)

// Options configures a Collector run.
type Options struct {
	// RunDate is the trading date as YYYY-MM-DD.
	RunDate string
	// Underlying is the symbol used for the opening reference price.
	Underlying string
	// OutBase is the merged artifact path without extension.
	OutBase string
	// Format selects the artifact encoding, store.FormatBinary or
	// store.FormatTabular.
	Format string
	// ResumeFrom overrides the checkpoint when >= 0: the batch index to
	// start at.
	ResumeFrom int
}

// Collector executes the day's acquisition: plans batches, fetches them
// strictly in sequence under the rate limiter, checkpoints after each, and
// merges the partitions once the last batch lands.
//
// It is the exclusive owner of the session handle and of the partition
// directory for the duration of the run.
type Collector struct {
	session    session.Session
	planner    *Planner
	fetcher    *Fetcher
	parts      *store.ParquetStore
	checkpoint store.CheckpointStore
	audit      store.AuditStore
	limiter    *util.FixedWindowLimiter
	opts       Options
	log        *slog.Logger
}

// NewCollector wires a Collector from its collaborators.
func NewCollector(
	sess session.Session,
	planner *Planner,
	fetcher *Fetcher,
	parts *store.ParquetStore,
	checkpoint store.CheckpointStore,
	audit store.AuditStore,
	limiter *util.FixedWindowLimiter,
	opts Options,
	log *slog.Logger,
) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		session:    sess,
		planner:    planner,
		fetcher:    fetcher,
		parts:      parts,
		checkpoint: checkpoint,
		audit:      audit,
		limiter:    limiter,
		opts:       opts,
		log:        log.With("gatherer", "intraday-0dte"),
	}
}

// Name returns the gatherer identifier.
func (c *Collector) Name() string { return "intraday-0dte" }

// Run executes the acquisition. Cancellation is honored only at batch
// boundaries: an in-flight batch finishes fetching, writing, and
// checkpointing before the run stops, so the checkpoint always reflects a
// consistent boundary.
func (c *Collector) Run(ctx context.Context) error {
	openPrice, err := c.session.OpeningPrice(ctx, c.opts.Underlying, c.planner.Date)
	if err != nil {
		return fmt.Errorf("fetching opening price: %w", err)
	}
	c.log.Info("opening price", "underlying", c.opts.Underlying, "price", openPrice)

	batches, err := c.planner.Plan(openPrice)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	resume, err := c.resumeIndex(ctx)
	if err != nil {
		return err
	}
	if resume > len(batches) {
		return fmt.Errorf("resume index %d beyond plan of %d batches", resume, len(batches))
	}
	if resume == len(batches) {
		// Every batch already checkpointed. If the partitions are gone
		// too, a previous run also merged: nothing to do. Otherwise
		// fall through to seal and merge.
		existing, err := c.parts.Strikes()
		if err != nil {
			return fmt.Errorf("listing partitions: %w", err)
		}
		if len(existing) == 0 {
			c.log.Info("run already completed and merged", "date", c.opts.RunDate)
			return nil
		}
	}

	c.log.Info("starting acquisition",
		"date", c.opts.RunDate,
		"openStrike", RoundToMultiple(openPrice, c.planner.Increment),
		"batches", len(batches),
		"resumeFrom", resume,
	)

	firstStart := batches[0].Interval.Start

	for i := resume; i < len(batches); i++ {
		// Cancellation is checked only here, between batches.
		if err := ctx.Err(); err != nil {
			c.log.Info("stopping at batch boundary", "nextBatch", i)
			return err
		}

		batch := batches[i]
		c.log.Info("batch start",
			"batch", batch.Index,
			"windowStart", batch.Interval.Start.Format("15:04"),
			"windowEnd", batch.Interval.End.Format("15:04"),
			"strikes", len(batch.Strikes),
		)

		// The in-flight batch must finish even if ctx is cancelled
		// mid-way.
		batchCtx := context.WithoutCancel(ctx)
		if err := c.runBatch(batchCtx, batch, firstStart); err != nil {
			return err
		}

		// Cooldown before advancing: a batch counts as complete only
		// once its rate window has elapsed. A cancellation during the
		// cooldown still advances the checkpoint — the rows are
		// committed — and then stops the run.
		cooldownErr := c.limiter.Cooldown(ctx)
		if err := c.checkpoint.Advance(batchCtx, c.opts.RunDate, batch.Index); err != nil {
			return fmt.Errorf("advancing checkpoint past batch %d: %w", batch.Index, err)
		}
		c.log.Info("batch complete", "batch", batch.Index)
		if cooldownErr != nil {
			c.log.Info("stopping after cooldown cancellation", "lastBatch", batch.Index)
			return cooldownErr
		}
	}

	// Seal every partition, then consolidate.
	for _, strike := range strikeUnion(batches) {
		if err := c.parts.Complete(strike); err != nil {
			return fmt.Errorf("sealing partition %d: %w", strike, err)
		}
	}

	result, err := store.NewMerger(c.parts, c.log).Merge(c.opts.OutBase, c.opts.Format)
	if err != nil {
		return fmt.Errorf("merging: %w", err)
	}
	c.log.Info("all data gathered", "artifact", result.Path, "rows", result.Rows)
	return nil
}

// runBatch fetches and writes every unit of one batch. Units carry no
// ordering dependency, but each unit's rows are written in the order the
// fetcher produced them, grouped per strike so partitions never interleave.
func (c *Collector) runBatch(ctx context.Context, batch Batch, firstStart time.Time) error {
	// First window of the run: recreate this batch's partitions so a
	// re-run of the same date starts clean. Later windows append.
	if batch.Interval.Start.Equal(firstStart) {
		for _, strike := range batch.Strikes {
			if err := c.parts.Reset(strike); err != nil {
				return fmt.Errorf("resetting partition %d: %w", strike, err)
			}
		}
	}

	rowsByStrike := make(map[int][]domain.Quote, len(batch.Strikes))
	for _, unit := range batch.Units {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		rows, err := c.fetcher.Fetch(ctx, unit)
		if err != nil {
			// Session-level failure: abort the whole run. The
			// checkpoint stays at the last completed batch, which
			// is the manual resume point.
			return err
		}
		rowsByStrike[unit.Strike] = append(rowsByStrike[unit.Strike], rows...)

		if err := c.audit.RecordUnit(ctx, c.opts.RunDate, store.UnitOutcome{
			Batch:     batch.Index,
			Strike:    unit.Strike,
			Right:     unit.Right,
			Side:      unit.Side,
			WindowEnd: unit.WindowEnd.Format(time.RFC3339),
			Rows:      len(rows),
		}); err != nil {
			return fmt.Errorf("journaling unit outcome: %w", err)
		}
	}

	for _, strike := range batch.Strikes {
		if err := c.parts.Append(strike, rowsByStrike[strike]); err != nil {
			return fmt.Errorf("writing batch %d: %w", batch.Index, err)
		}
	}
	return nil
}

// resumeIndex decides the first batch to run: a user override when set,
// otherwise one past the checkpoint.
func (c *Collector) resumeIndex(ctx context.Context) (int, error) {
	if c.opts.ResumeFrom >= 0 {
		return c.opts.ResumeFrom, nil
	}
	last, err := c.checkpoint.LastCompleted(ctx, c.opts.RunDate)
	if err != nil {
		return 0, fmt.Errorf("reading checkpoint: %w", err)
	}
	return last + 1, nil
}

// strikeUnion returns the distinct strikes across all batches, ascending.
func strikeUnion(batches []Batch) []int {
	seen := make(map[int]struct{})
	var strikes []int
	for _, b := range batches {
		for _, s := range b.Strikes {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			strikes = append(strikes, s)
		}
	}
	sort.Ints(strikes)
	return strikes
}
