package session

import (
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

func TestTimeFrameFor(t *testing.T) {
	tests := []struct {
		resolution time.Duration
		want       marketdata.TimeFrame
		wantErr    bool
	}{
		{time.Second, marketdata.TimeFrame{}, true},
		{30 * time.Second, marketdata.TimeFrame{}, true},
		{time.Minute, marketdata.OneMin, false},
		{5 * time.Minute, marketdata.NewTimeFrame(5, marketdata.Min), false},
		{time.Hour, marketdata.NewTimeFrame(1, marketdata.Hour), false},
		{24 * time.Hour, marketdata.OneDay, false},
	}

	for _, tt := range tests {
		got, err := timeFrameFor(tt.resolution)
		if tt.wantErr {
			if err == nil {
				t.Errorf("timeFrameFor(%v) = %v, want error", tt.resolution, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("timeFrameFor(%v): %v", tt.resolution, err)
			continue
		}
		if got != tt.want {
			t.Errorf("timeFrameFor(%v) = %v, want %v", tt.resolution, got, tt.want)
		}
	}
}
