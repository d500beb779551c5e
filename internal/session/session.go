// Package session defines the market-data session interface the acquisition
// pipeline depends on, together with the Alpaca-backed implementation. The
// session handle is acquired once at run start, threaded explicitly through
// every component that needs it, and released once at run end.
package session

import (
	"context"
	"time"

	"intraday/internal/domain"
)

// Sample is one provider bar for a single side of a contract: a timestamp and
// the low/high pair observed over the sampling period.
type Sample struct {
	Timestamp time.Time
	Low       float64
	High      float64
}

// Session is the external market-data collaborator. Implementations own the
// provider connection; callers must not invoke a Session concurrently, since
// the rate budget it is used under is a global per-session quota.
type Session interface {
	// OpeningPrice returns the underlying's opening price on the given
	// trading date.
	OpeningPrice(ctx context.Context, symbol string, date time.Time) (float64, error)

	// FetchSeries returns samples for one side of one contract over the
	// window ending at end, at the given resolution, in ascending time
	// order. An empty result is not an error.
	FetchSeries(ctx context.Context, contract domain.OptionContract, end time.Time, window, resolution time.Duration, side domain.Side) ([]Sample, error)

	// Close releases the provider connection.
	Close() error
}
