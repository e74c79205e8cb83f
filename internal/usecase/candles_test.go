package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketLabel/internal/domain/models"
)

func TestGetCandles(t *testing.T) {
	store := &fakeCandles{candles: syntheticCandles(50)}
	uc := NewCandlesUseCase(store, time.Hour)
	uc.now = func() time.Time { return base.Add(time.Hour) }

	res, err := uc.GetCandles(context.Background(), models.CandlesQuery{Symbol: "AAPL", Limit: 20})
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if res.Count != 20 || res.Timeframe != "1m" {
		t.Fatalf("unexpected result count=%d tf=%s", res.Count, res.Timeframe)
	}
	if !res.From.Equal(base) {
		t.Fatalf("from should default to now-lookback, got %v", res.From)
	}

	_, err = uc.GetCandles(context.Background(), models.CandlesQuery{
		Symbol: "AAPL",
		From:   base.Add(2 * time.Hour).Format(time.RFC3339),
		To:     base.Format(time.RFC3339),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
