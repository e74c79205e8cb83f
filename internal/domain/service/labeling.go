package service

import (
	"context"
	"time"

	"MarketLabel/internal/domain/models"
)

// RunParams selects the series a labeling run covers.
type RunParams struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Persist   bool
}

// Labeler derives trend labels and volume anomaly flags for a candle series.
type Labeler interface {
	Run(ctx context.Context, p RunParams) (*models.LabelRun, error)
	Compute(ctx context.Context, symbol, tf string, candles []models.Candle, debug bool) (*models.LabelRun, error)
	Labels(ctx context.Context, q models.LabelsQuery) ([]models.LabeledBar, error)
}
