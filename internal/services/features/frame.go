package features

import (
	"fmt"

	"MarketLabel/internal/domain/models"
)

// Columns splits candles into close and volume columns.
func Columns(candles []models.Candle) (close, volume []float64) {
	close = make([]float64, len(candles))
	volume = make([]float64, len(candles))
	for i, c := range candles {
		close[i] = c.Close
		volume[i] = c.Volume
	}
	return close, volume
}

// VolumeFrame computes a rolling mean of volume for each window plus the
// percent change of the indicator window's rolling mean.
func VolumeFrame(volume []float64, windows []int, indicatorWindow int) (map[int][]float64, []float64) {
	means := make(map[int][]float64, len(windows)+1)
	for _, w := range windows {
		if _, ok := means[w]; !ok {
			means[w] = RollingMean(volume, w)
		}
	}
	indicator, ok := means[indicatorWindow]
	if !ok {
		indicator = RollingMean(volume, indicatorWindow)
	}
	return means, PctChange(indicator)
}

// Merge joins the candles with the trend and anomaly columns position by position.
func Merge(candles []models.Candle, trend []string, flags []bool) ([]models.LabeledBar, error) {
	if len(trend) != len(candles) || len(flags) != len(candles) {
		return nil, fmt.Errorf("merge: %d candles, %d trend labels, %d flags", len(candles), len(trend), len(flags))
	}
	out := make([]models.LabeledBar, len(candles))
	for i, c := range candles {
		out[i] = models.LabeledBar{
			Bucket:        c.Bucket,
			Symbol:        c.Symbol,
			Close:         c.Close,
			Volume:        c.Volume,
			Trend:         trend[i],
			VolumeAnomaly: flags[i],
		}
	}
	return out, nil
}
