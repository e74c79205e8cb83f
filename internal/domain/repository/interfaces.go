package repository

import (
	"context"
	"time"

	"MarketLabel/internal/domain/models"
)

// CandleStore provides read-only access to the candle series.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
}

// LabelStore persists label runs and reads stored labels back.
type LabelStore interface {
	SaveRun(ctx context.Context, run *models.LabelRun) error
	GetLabels(ctx context.Context, symbol string, tf Timeframe, from, to time.Time, limit int) ([]models.LabeledBar, error)
}

// Publisher announces finished runs.
type Publisher interface {
	PublishRun(ctx context.Context, run *models.LabelRun) error
	Close() error
}

type Metrics interface {
	RecordRun(symbol, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordLabels(trend string, n int)
	RecordIntervals(symbol string, n int)
}

// JobQueue hands a label job to whichever transport runs jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, job models.LabelJob) error
}
