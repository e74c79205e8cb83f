package usecase

import (
	"fmt"
	"time"

	"MarketLabel/internal/services/trend"
	"MarketLabel/internal/services/volume"
	"MarketLabel/pkg/cache"
	"MarketLabel/pkg/config"
)

// TrendParams maps the trend section of the config onto segmenter params.
func TrendParams(l config.Labeling) trend.Params {
	return trend.Params{
		OrderPrimary: l.Trend.OrderForFallRise,
		OrderFlat:    l.Trend.OrderForFlat,
		FlatWindow:   l.Trend.WindowSizeForRollingMean,
		FlatLow:      l.Trend.LeftBorderForFlatDetection,
		FlatHigh:     l.Trend.RightBorderForFlatDetection,
	}
}

// VolumeParams maps the volume section onto scanner params. Durations in the
// config are minutes.
func VolumeParams(l config.Labeling) (volume.Params, error) {
	tiers, err := volume.NewTierTable(l.Volume.Laps, l.Volume.Thresholds)
	if err != nil {
		return volume.Params{}, fmt.Errorf("volume tiers: %w", err)
	}
	return volume.Params{
		Windows:            append([]int(nil), l.Volume.ColumnsRollingMean...),
		IndicatorWindow:    l.Volume.MeanIndicator,
		IndicatorThreshold: l.Volume.ThresholdIndicator,
		Lookahead:          time.Duration(l.Volume.GapEndDate) * time.Minute,
		Step:               time.Duration(l.Volume.StepToEndDate) * time.Minute,
		Tiers:              tiers,
		FinalThreshold:     l.Volume.FinalThreshold,
		Workers:            l.Volume.Workers,
	}, nil
}

// paramsKey fingerprints every tunable that changes the labels. %#v keeps
// non-finite thresholds distinct where JSON would refuse them.
func paramsKey(f config.Features, tp trend.Params, vp volume.Params) string {
	return cache.HashKey(fmt.Sprintf("%#v|%#v|%#v", f, tp, vp))
}
