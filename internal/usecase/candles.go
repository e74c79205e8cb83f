package usecase

import (
	"context"
	"fmt"
	"time"

	"MarketLabel/internal/domain/models"
	domrepo "MarketLabel/internal/domain/repository"
	"MarketLabel/pkg/util"
)

// CandlesUseCase serves the raw bars a label run reads.
type CandlesUseCase struct {
	store    domrepo.CandleStore
	lookback time.Duration
	now      func() time.Time
}

func NewCandlesUseCase(store domrepo.CandleStore, lookback time.Duration) *CandlesUseCase {
	return &CandlesUseCase{store: store, lookback: lookback, now: time.Now}
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"tf"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, q models.CandlesQuery) (*GetCandlesResult, error) {
	if q.Symbol == "" {
		return nil, fmt.Errorf("symbol required: %w", ErrInvalidInput)
	}
	tf := domrepo.NormalizeTimeframe(q.TF)
	to := util.ParseTimeDefault(q.To, uc.now())
	from := util.ParseTimeDefault(q.From, to.Add(-uc.lookback))
	if from.After(to) {
		return nil, fmt.Errorf("from must be <= to: %w", ErrInvalidInput)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10000
	}
	if limit > 50000 {
		limit = 50000
	}

	candles, err := uc.store.GetCandles(ctx, q.Symbol, from, to, tf)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > limit {
		candles = candles[:limit]
	}

	return &GetCandlesResult{
		Symbol:    q.Symbol,
		Timeframe: string(tf),
		From:      from,
		To:        to,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
