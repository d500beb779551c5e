// Package intraday implements the 0DTE option quote acquisition pipeline:
// planning the day's fetch universe, executing it in rate-limited batches
// with durable checkpoints, and handing the partitions to the merger.
package intraday

import (
	"fmt"
	"math"
	"time"

	"intraday/internal/domain"
)

// WorkUnit is one atomic fetch: one side of one contract over one window.
// Immutable once planned.
type WorkUnit struct {
	Strike      int
	Right       domain.Right
	Side        domain.Side
	WindowStart time.Time
	WindowEnd   time.Time
}

// Interval is one fetch window within the trading session.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Batch is a rate-limit-sized group of WorkUnits sharing a time window.
// Batches execute strictly in Index order; units within a batch carry no
// ordering dependency.
type Batch struct {
	Index    int
	Interval Interval
	Strikes  []int
	Units    []WorkUnit
}

// Planner expands a day's universe into ordered batches. It is pure: the
// plan is fully re-derivable from the date and configuration, so it is never
// persisted.
type Planner struct {
	// Date is the trading date in exchange-local time.
	Date time.Time

	// Increment is the strike grid spacing.
	Increment int
	// NumStrikes is the count on each side of the opening strike, used
	// when no explicit bounds are set.
	NumStrikes int
	// StartStrike/EndStrike are explicit bounds; zero means derive from
	// NumStrikes and the opening price. Each bound is itself rounded to
	// the increment.
	StartStrike int
	EndStrike   int

	// SessionStart/SessionEnd override the trading session bounds; zero
	// values mean 09:30 and 16:00. Both must land on interval boundaries.
	SessionStart time.Time
	SessionEnd   time.Time
	// IntervalLength is the fetch window length.
	IntervalLength time.Duration

	// BatchStrikes is the number of strikes per batch.
	BatchStrikes int
}

// RoundToMultiple returns x rounded to the nearest multiple of base, halves
// away from zero. The result anchors the whole strike universe, so the tie
// rule is fixed here rather than left to the platform.
func RoundToMultiple(x float64, base int) int {
	return base * int(math.Round(x/float64(base)))
}

// Plan expands the universe anchored at the given opening price into ordered
// batches. All validation happens here, before any network activity.
func (p *Planner) Plan(openPrice float64) ([]Batch, error) {
	if p.Increment < 1 {
		return nil, fmt.Errorf("strike increment must be >= 1, got %d", p.Increment)
	}
	if p.BatchStrikes < 1 {
		return nil, fmt.Errorf("batch size must be >= 1 strikes, got %d", p.BatchStrikes)
	}

	openStrike := RoundToMultiple(openPrice, p.Increment)
	strikes, err := p.strikeUniverse(openStrike)
	if err != nil {
		return nil, err
	}

	intervals, err := p.sessionIntervals()
	if err != nil {
		return nil, err
	}

	groups := groupStrikes(strikes, p.BatchStrikes)

	// Cross product, interval-major: all strike groups of the first window
	// complete (and cool down) before the next window begins.
	var batches []Batch
	for _, iv := range intervals {
		for _, group := range groups {
			b := Batch{
				Index:    len(batches),
				Interval: iv,
				Strikes:  group,
			}
			for _, strike := range group {
				for _, right := range domain.Rights {
					for _, side := range domain.Sides {
						b.Units = append(b.Units, WorkUnit{
							Strike:      strike,
							Right:       right,
							Side:        side,
							WindowStart: iv.Start,
							WindowEnd:   iv.End,
						})
					}
				}
			}
			batches = append(batches, b)
		}
	}
	return batches, nil
}

// strikeUniverse builds the inclusive strike range, from explicit bounds when
// given or NumStrikes each side of the opening strike otherwise.
func (p *Planner) strikeUniverse(openStrike int) ([]int, error) {
	start, end := p.StartStrike, p.EndStrike
	if start == 0 {
		start = openStrike - p.Increment*p.NumStrikes
	} else {
		start = RoundToMultiple(float64(start), p.Increment)
	}
	if end == 0 {
		end = openStrike + p.Increment*p.NumStrikes
	} else {
		end = RoundToMultiple(float64(end), p.Increment)
	}

	if start > end {
		return nil, fmt.Errorf("starting strike %d is greater than ending strike %d", start, end)
	}

	var strikes []int
	for s := start; s <= end; s += p.Increment {
		strikes = append(strikes, s)
	}
	return strikes, nil
}

// sessionIntervals splits the trading session into consecutive
// non-overlapping windows of IntervalLength. Explicit session bounds must
// land exactly on interval boundaries of the full 09:30-16:00 grid.
func (p *Planner) sessionIntervals() ([]Interval, error) {
	if p.IntervalLength <= 0 {
		return nil, fmt.Errorf("interval length must be positive, got %s", p.IntervalLength)
	}

	open := p.at(9, 30)
	sessionClose := p.at(16, 0)
	if span := sessionClose.Sub(open); span%p.IntervalLength != 0 {
		return nil, fmt.Errorf("interval length %s does not divide the %s trading session", p.IntervalLength, span)
	}

	start, end := p.SessionStart, p.SessionEnd
	if start.IsZero() {
		start = open
	}
	if end.IsZero() {
		end = sessionClose
	}

	if !end.After(start) {
		return nil, fmt.Errorf("session end %s must be later than session start %s",
			end.Format("15:04"), start.Format("15:04"))
	}
	if !onBoundary(start, open, p.IntervalLength) || start.Before(open) || !start.Before(sessionClose) {
		return nil, fmt.Errorf("session start %s must land on a %s boundary of the trading session",
			start.Format("15:04"), p.IntervalLength)
	}
	if !onBoundary(end, open, p.IntervalLength) || end.After(sessionClose) || !end.After(open) {
		return nil, fmt.Errorf("session end %s must land on a %s boundary of the trading session",
			end.Format("15:04"), p.IntervalLength)
	}

	var intervals []Interval
	for t := start; t.Before(end); t = t.Add(p.IntervalLength) {
		intervals = append(intervals, Interval{Start: t, End: t.Add(p.IntervalLength)})
	}
	return intervals, nil
}

func (p *Planner) at(hour, minute int) time.Time {
	return time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), hour, minute, 0, 0, p.Date.Location())
}

func onBoundary(t, anchor time.Time, step time.Duration) bool {
	d := t.Sub(anchor)
	return d >= 0 && d%step == 0
}

// groupStrikes partitions strikes into fixed-size groups; only the last
// group may be smaller.
func groupStrikes(strikes []int, n int) [][]int {
	var groups [][]int
	for i := 0; i < len(strikes); i += n {
		end := min(i+n, len(strikes))
		groups = append(groups, strikes[i:end])
	}
	return groups
}
