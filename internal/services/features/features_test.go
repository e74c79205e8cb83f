package features

import (
	"math"
	"testing"
	"time"

	"MarketLabel/internal/domain/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEMA(t *testing.T) {
	got := EMA([]float64{math.NaN(), 1, 2, 3}, 3, 2)
	// alpha = 0.5: 1, 1.5, 2.25
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Fatalf("expected leading NaN, got %v", got)
	}
	if !near(got[2], 1.5) || !near(got[3], 2.25) {
		t.Fatalf("unexpected ema %v", got)
	}
}

func TestEMAHoldsThroughGaps(t *testing.T) {
	got := EMA([]float64{2, math.NaN(), 4}, 3, 1)
	if !near(got[0], 2) || !near(got[1], 2) || !near(got[2], 3) {
		t.Fatalf("unexpected ema %v", got)
	}
}

func TestMACDConstantSeries(t *testing.T) {
	close := make([]float64, 60)
	for i := range close {
		close[i] = 10
	}
	macd, signal := MACD(close, 12, 26, 9, 9)
	if !math.IsNaN(macd[24]) || !near(macd[25], 0) {
		t.Fatalf("macd should start at the long span, got %v %v", macd[24], macd[25])
	}
	if !math.IsNaN(signal[32]) || !near(signal[33], 0) {
		t.Fatalf("signal should start nine bars later, got %v %v", signal[32], signal[33])
	}
}

func TestRollingMean(t *testing.T) {
	got := RollingMean([]float64{1, 2, 3, math.NaN(), 5, 6, 7}, 2)
	want := []float64{math.NaN(), 1.5, 2.5, math.NaN(), math.NaN(), 5.5, 6.5}
	for i := range want {
		if math.IsNaN(want[i]) != math.IsNaN(got[i]) || (!math.IsNaN(want[i]) && !near(got[i], want[i])) {
			t.Fatalf("RollingMean[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPctChange(t *testing.T) {
	got := PctChange([]float64{100, 150, 75})
	if !math.IsNaN(got[0]) || !near(got[1], 0.5) || !near(got[2], -0.5) {
		t.Fatalf("unexpected pct change %v", got)
	}
}

func TestVolumeFrame(t *testing.T) {
	means, indicator := VolumeFrame([]float64{1, 1, 2, 2, 4}, []int{2, 3}, 2)
	if len(means) != 2 {
		t.Fatalf("expected two columns, got %d", len(means))
	}
	if !near(means[3][4], 8.0/3) {
		t.Fatalf("unexpected mean %v", means[3][4])
	}
	// indicator means: NaN, 1, 1.5, 2, 3
	if !math.IsNaN(indicator[1]) || !near(indicator[2], 0.5) || !near(indicator[4], 0.5) {
		t.Fatalf("unexpected indicator %v", indicator)
	}
}

func TestMerge(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []models.Candle{
		{Bucket: ts, Symbol: "AAPL", Close: 1, Volume: 10},
		{Bucket: ts.Add(time.Minute), Symbol: "AAPL", Close: 2, Volume: 20},
	}
	bars, err := Merge(candles, []string{"rise", "fall"}, []bool{false, true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bars[1].Trend != "fall" || !bars[1].VolumeAnomaly || bars[1].Volume != 20 {
		t.Fatalf("unexpected bar %+v", bars[1])
	}
	if _, err := Merge(candles, []string{"rise"}, []bool{false, true}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}
