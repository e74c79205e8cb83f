package repository

import (
	"testing"
	"time"
)

func TestNormalizeTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want Timeframe
	}{
		{"", TF1m},
		{"1s", TF1s},
		{"5m", TF5m},
		{"1h", TF1m},
	}
	for _, tt := range tests {
		if got := NormalizeTimeframe(tt.in); got != tt.want {
			t.Errorf("NormalizeTimeframe(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTimeframeTableAndDuration(t *testing.T) {
	if TF5m.CandleTable() != "candles_5m" {
		t.Fatalf("unexpected table %s", TF5m.CandleTable())
	}
	if TF1s.Duration() != time.Second || TF5m.Duration() != 5*time.Minute {
		t.Fatalf("unexpected durations")
	}
}
