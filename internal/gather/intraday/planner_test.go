package intraday

import (
	"math"
	"strings"
	"testing"
	"time"

	"intraday/internal/domain"
)

func testDate() time.Time {
	return time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)
}

func defaultPlanner() *Planner {
	return &Planner{
		Date:           testDate(),
		Increment:      5,
		NumStrikes:     30,
		IntervalLength: 30 * time.Minute,
		BatchStrikes:   15,
	}
}

func TestRoundToMultiple(t *testing.T) {
	tests := []struct {
		x    float64
		want int
	}{
		{5400.0, 5400},
		{5401.9, 5400},
		{5402.5, 5405}, // halves away from zero
		{5403.2, 5405},
		{5397.5, 5400},
		{-7.5, -10},
		{0, 0},
	}
	for _, tt := range tests {
		if got := RoundToMultiple(tt.x, 5); got != tt.want {
			t.Errorf("RoundToMultiple(%v, 5) = %d, want %d", tt.x, got, tt.want)
		}
	}

	// Properties: result is a multiple, and within half an increment.
	for x := -100.0; x <= 100.0; x += 0.37 {
		got := RoundToMultiple(x, 5)
		if got%5 != 0 {
			t.Fatalf("RoundToMultiple(%v, 5) = %d, not a multiple of 5", x, got)
		}
		if math.Abs(float64(got)-x) > 2.5 {
			t.Fatalf("RoundToMultiple(%v, 5) = %d, off by more than 2.5", x, got)
		}
	}
}

func TestSessionIntervals(t *testing.T) {
	p := defaultPlanner()
	intervals, err := p.sessionIntervals()
	if err != nil {
		t.Fatal(err)
	}
	if len(intervals) != 13 {
		t.Fatalf("09:30-16:00 at 30m gives %d intervals, want 13", len(intervals))
	}
	if got := intervals[0].Start.Format("15:04"); got != "09:30" {
		t.Errorf("first interval starts %s, want 09:30", got)
	}
	if got := intervals[12].End.Format("15:04"); got != "16:00" {
		t.Errorf("last interval ends %s, want 16:00", got)
	}
	for i := 1; i < len(intervals); i++ {
		if !intervals[i].Start.Equal(intervals[i-1].End) {
			t.Errorf("interval %d does not abut interval %d", i, i-1)
		}
	}
}

func TestSessionIntervalsCustomBounds(t *testing.T) {
	p := defaultPlanner()
	p.SessionStart = p.at(10, 0)
	p.SessionEnd = p.at(12, 0)
	intervals, err := p.sessionIntervals()
	if err != nil {
		t.Fatal(err)
	}
	if len(intervals) != 4 {
		t.Fatalf("10:00-12:00 at 30m gives %d intervals, want 4", len(intervals))
	}
}

func TestSessionIntervalsValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Planner)
		wantErr string
	}{
		{"end before start", func(p *Planner) {
			p.SessionStart = p.at(12, 0)
			p.SessionEnd = p.at(10, 0)
		}, "must be later than"},
		{"end equals start", func(p *Planner) {
			p.SessionStart = p.at(12, 0)
			p.SessionEnd = p.at(12, 0)
		}, "must be later than"},
		{"misaligned start", func(p *Planner) {
			p.SessionStart = p.at(9, 45)
		}, "boundary"},
		{"misaligned end", func(p *Planner) {
			p.SessionEnd = p.at(15, 50)
		}, "boundary"},
		{"start before open", func(p *Planner) {
			p.SessionStart = p.at(9, 0)
		}, "boundary"},
		{"end after close", func(p *Planner) {
			p.SessionEnd = p.at(16, 30)
		}, "boundary"},
		{"non-dividing interval", func(p *Planner) {
			p.IntervalLength = 45 * time.Minute
		}, "does not divide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := defaultPlanner()
			tt.mutate(p)
			_, err := p.sessionIntervals()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("sessionIntervals() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStrikeUniverse(t *testing.T) {
	p := defaultPlanner()
	strikes, err := p.strikeUniverse(5400)
	if err != nil {
		t.Fatal(err)
	}
	if len(strikes) != 61 {
		t.Fatalf("30 strikes each side gives %d strikes, want 61", len(strikes))
	}
	if strikes[0] != 5250 || strikes[60] != 5550 {
		t.Errorf("universe spans %d-%d, want 5250-5550", strikes[0], strikes[60])
	}

	// Explicit bounds, themselves rounded to the increment.
	p.StartStrike = 5401
	p.EndStrike = 5449
	strikes, err = p.strikeUniverse(5400)
	if err != nil {
		t.Fatal(err)
	}
	if strikes[0] != 5400 || strikes[len(strikes)-1] != 5450 {
		t.Errorf("bounded universe spans %d-%d, want 5400-5450", strikes[0], strikes[len(strikes)-1])
	}

	// Inverted bounds fail fast.
	p.StartStrike, p.EndStrike = 5450, 5400
	if _, err := p.strikeUniverse(5400); err == nil {
		t.Error("inverted strike bounds accepted")
	}
}

func TestGroupStrikes(t *testing.T) {
	// 11 strikes, batch size 5: groups of 5, 5, 1.
	var strikes []int
	for s := 5400; s <= 5450; s += 5 {
		strikes = append(strikes, s)
	}
	groups := groupStrikes(strikes, 5)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	for i, want := range []int{5, 5, 1} {
		if len(groups[i]) != want {
			t.Errorf("group %d has %d strikes, want %d", i, len(groups[i]), want)
		}
	}

	// ceil(S/B) groups, only the last short.
	for s := 1; s <= 40; s++ {
		for b := 1; b <= 20; b++ {
			groups := groupStrikes(strikes[:min(s, len(strikes))], b)
			n := min(s, len(strikes))
			wantGroups := (n + b - 1) / b
			if len(groups) != wantGroups {
				t.Fatalf("S=%d B=%d: %d groups, want %d", n, b, len(groups), wantGroups)
			}
			for i, g := range groups {
				if i < len(groups)-1 && len(g) != b {
					t.Fatalf("S=%d B=%d: non-final group %d has %d strikes", n, b, i, len(g))
				}
			}
		}
	}
}

func TestPlanCoversUniverseExactly(t *testing.T) {
	p := defaultPlanner()
	p.StartStrike, p.EndStrike = 5400, 5450
	p.BatchStrikes = 5
	batches, err := p.Plan(5423.0)
	if err != nil {
		t.Fatal(err)
	}

	// 13 intervals x 3 strike groups.
	if len(batches) != 39 {
		t.Fatalf("plan has %d batches, want 39", len(batches))
	}
	for i, b := range batches {
		if b.Index != i {
			t.Fatalf("batch %d carries index %d", i, b.Index)
		}
	}

	// The union of units is exactly strikes x rights x sides x intervals,
	// with no duplicates.
	type unitKey struct {
		strike int
		right  domain.Right
		side   domain.Side
		start  string
	}
	seen := make(map[unitKey]int)
	for _, b := range batches {
		for _, u := range b.Units {
			if !u.WindowStart.Equal(b.Interval.Start) || !u.WindowEnd.Equal(b.Interval.End) {
				t.Fatalf("unit window %v-%v disagrees with batch interval", u.WindowStart, u.WindowEnd)
			}
			seen[unitKey{u.Strike, u.Right, u.Side, u.WindowStart.Format("15:04")}]++
		}
	}
	want := 11 * 2 * 2 * 13
	if len(seen) != want {
		t.Fatalf("plan covers %d distinct units, want %d", len(seen), want)
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("unit %+v planned %d times", k, n)
		}
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	p := defaultPlanner()
	a, err := p.Plan(5423.0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Plan(5423.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("plans differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i].Units) != len(b[i].Units) {
			t.Fatalf("batch %d differs between plans", i)
		}
		for j := range a[i].Units {
			if a[i].Units[j] != b[i].Units[j] {
				t.Fatalf("batch %d unit %d differs between plans", i, j)
			}
		}
	}
}

func TestPlanIntervalMajorOrder(t *testing.T) {
	p := defaultPlanner()
	p.StartStrike, p.EndStrike = 5400, 5450
	p.BatchStrikes = 5
	batches, err := p.Plan(5423.0)
	if err != nil {
		t.Fatal(err)
	}

	// All strike groups of one window run before the next window starts.
	for i := 1; i < len(batches); i++ {
		if batches[i].Interval.Start.Before(batches[i-1].Interval.Start) {
			t.Fatalf("batch %d window precedes batch %d window", i, i-1)
		}
	}
	if !batches[0].Interval.Start.Equal(batches[2].Interval.Start) {
		t.Error("first three batches should share the first window")
	}
	if batches[3].Interval.Start.Equal(batches[0].Interval.Start) {
		t.Error("fourth batch should open the second window")
	}
}
