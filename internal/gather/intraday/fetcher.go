package intraday

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"intraday/internal/domain"
	"intraday/internal/session"
)

// Fetcher turns one WorkUnit into quote rows via the market-data session.
type Fetcher struct {
	session    session.Session
	optionRoot string
	expiry     time.Time
	resolution time.Duration
	log        *slog.Logger
}

// NewFetcher creates a Fetcher for 0DTE contracts expiring on the given
// date, at the given sampling resolution.
func NewFetcher(s session.Session, optionRoot string, expiry time.Time, resolution time.Duration, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		session:    s,
		optionRoot: optionRoot,
		expiry:     expiry,
		resolution: resolution,
		log:        log.With("component", "fetcher"),
	}
}

// Fetch issues the unit's external request and normalizes the response into
// quote rows, time ascending. A unit with no bars yields zero rows and is
// logged; a session failure is fatal to the run and surfaces as an error.
func (f *Fetcher) Fetch(ctx context.Context, unit WorkUnit) ([]domain.Quote, error) {
	contract := domain.OptionContract{
		Root:   f.optionRoot,
		Expiry: f.expiry,
		Strike: unit.Strike,
		Right:  unit.Right,
	}

	window := unit.WindowEnd.Sub(unit.WindowStart)
	samples, err := f.session.FetchSeries(ctx, contract, unit.WindowEnd, window, f.resolution, unit.Side)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s window ending %s: %w",
			contract, unit.Side, unit.WindowEnd.Format("15:04"), err)
	}

	if len(samples) == 0 {
		f.log.Info("no bars for unit",
			"strike", unit.Strike,
			"right", unit.Right,
			"side", unit.Side,
			"windowEnd", unit.WindowEnd.Format("15:04"),
		)
		return nil, nil
	}

	rows := make([]domain.Quote, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, domain.Quote{
			Timestamp: s.Timestamp.Unix(),
			Strike:    unit.Strike,
			Right:     unit.Right,
			Side:      unit.Side,
			Price:     priceFor(unit.Side, s),
		})
	}
	return rows, nil
}

// priceFor picks the conservative inside quote from the provider's low/high
// pair: the low of a bid series, the high of an ask series.
func priceFor(side domain.Side, s session.Sample) float64 {
	if side == domain.SideAsk {
		return s.High
	}
	return s.Low
}
