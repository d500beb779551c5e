package session

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"intraday/internal/domain"
)

// Compile-time interface check.
var _ Session = (*AlpacaSession)(nil)

// AlpacaSession implements Session using the Alpaca market-data API for
// historical index and option bars, and the trading API for calendar checks.
type AlpacaSession struct {
	md      *marketdata.Client
	trading *alpaca.Client
}

// NewAlpacaSession creates a connected AlpacaSession. It verifies the
// credentials up front with a cheap clock request so that a refused
// connection fails at startup, before any files are touched.
func NewAlpacaSession(apiKey, apiSecret, baseURL, dataURL string) (*AlpacaSession, error) {
	mdOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		mdOpts.BaseURL = dataURL
	}

	tradingOpts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		tradingOpts.BaseURL = baseURL
	}

	s := &AlpacaSession{
		md:      marketdata.NewClient(mdOpts),
		trading: alpaca.NewClient(tradingOpts),
	}

	if _, err := s.trading.GetClock(); err != nil {
		return nil, fmt.Errorf("connecting to alpaca: %w", err)
	}
	return s, nil
}

// OpeningPrice returns the underlying's opening price on the given trading
// date, from its daily bar.
func (s *AlpacaSession) OpeningPrice(_ context.Context, symbol string, date time.Time) (float64, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	bars, err := s.md.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     dayStart,
		End:       dayStart.AddDate(0, 0, 1),
	})
	if err != nil {
		return 0, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no daily bar for %s on %s", symbol, date.Format("2006-01-02"))
	}
	return bars[0].Open, nil
}

// FetchSeries returns option bars for one side of the contract over the
// window ending at end. An empty series (illiquid strike, shortened session)
// is returned as a nil slice with no error.
func (s *AlpacaSession) FetchSeries(_ context.Context, contract domain.OptionContract, end time.Time, window, resolution time.Duration, side domain.Side) ([]Sample, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("unknown side selector %q", side)
	}

	tf, err := timeFrameFor(resolution)
	if err != nil {
		return nil, err
	}

	bars, err := s.md.GetOptionBars(contract.OCCSymbol(), marketdata.GetOptionBarsRequest{
		TimeFrame: tf,
		Start:     end.Add(-window),
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetOptionBars %s: %w", contract.OCCSymbol(), err)
	}

	samples := make([]Sample, 0, len(bars))
	for _, b := range bars {
		samples = append(samples, Sample{
			Timestamp: b.Timestamp,
			Low:       b.Low,
			High:      b.High,
		})
	}
	return samples, nil
}

// IsTradingDay reports whether the given date is a trading day according to
// the exchange calendar.
func (s *AlpacaSession) IsTradingDay(date time.Time) (bool, error) {
	days, err := s.trading.GetCalendar(alpaca.GetCalendarRequest{
		Start: date,
		End:   date,
	})
	if err != nil {
		return false, fmt.Errorf("GetCalendar: %w", err)
	}

	want := date.Format("2006-01-02")
	for _, day := range days {
		if day.Date == want {
			return true, nil
		}
	}
	return false, nil
}

// Close releases the session. The underlying clients are plain HTTP clients
// with no persistent connection state.
func (s *AlpacaSession) Close() error { return nil }

// timeFrameFor maps a sampling resolution to an Alpaca bar timeframe.
// Alpaca historical bars floor at one minute; sub-minute resolutions are
// rejected rather than silently coarsened.
func timeFrameFor(resolution time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case resolution < time.Minute:
		return marketdata.TimeFrame{}, fmt.Errorf("alpaca historical bars support 1m resolution at minimum, got %s", resolution)
	case resolution < time.Hour:
		return marketdata.NewTimeFrame(int(resolution/time.Minute), marketdata.Min), nil
	case resolution < 24*time.Hour:
		return marketdata.NewTimeFrame(int(resolution/time.Hour), marketdata.Hour), nil
	default:
		return marketdata.OneDay, nil
	}
}
