package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"MarketLabel/internal/domain/models"
	domrepo "MarketLabel/internal/domain/repository"
	domsvc "MarketLabel/internal/domain/service"
	"MarketLabel/pkg/cache"
	"MarketLabel/pkg/config"
	pkgkafka "MarketLabel/pkg/kafka"
)

var base = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type fakeCandles struct {
	mu      sync.Mutex
	candles []models.Candle
	calls   int
	err     error
}

func (f *fakeCandles) GetCandles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.candles, f.err
}

func (f *fakeCandles) Health(context.Context) error { return nil }

type fakeLabels struct {
	runs []*models.LabelRun
	err  error
}

func (f *fakeLabels) SaveRun(_ context.Context, run *models.LabelRun) error {
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeLabels) GetLabels(_ context.Context, symbol string, _ domrepo.Timeframe, from, to time.Time, limit int) ([]models.LabeledBar, error) {
	var out []models.LabeledBar
	for _, r := range f.runs {
		for _, b := range r.Bars {
			if b.Symbol == symbol && !b.Bucket.Before(from) && !b.Bucket.After(to) && len(out) < limit {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

type fakePublisher struct{ runs []*models.LabelRun }

func (f *fakePublisher) PublishRun(_ context.Context, run *models.LabelRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func syntheticCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		vol := 100 + 10*math.Sin(float64(i)/3)
		if i%150 > 120 && i%150 < 130 {
			vol *= 4
		}
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Minute),
			Symbol: "AAPL",
			Close:  100 + 5*math.Sin(float64(i)/25) + math.Sin(float64(i)/4),
			Volume: vol,
		}
	}
	return out
}

type fixture struct {
	uc      *Labeler
	candles *fakeCandles
	labels  *fakeLabels
	pub     *fakePublisher
	cache   *cache.MemoryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		candles: &fakeCandles{candles: syntheticCandles(600)},
		labels:  &fakeLabels{},
		pub:     &fakePublisher{},
		cache:   cache.NewMemoryCache(),
	}
	t.Cleanup(func() { _ = f.cache.Close() })
	uc, err := NewLabeler(config.DefaultLabeling(), f.candles, f.labels, f.pub, f.cache, nil, nil)
	if err != nil {
		t.Fatalf("new labeler: %v", err)
	}
	uc.now = func() time.Time { return base.Add(12 * time.Hour) }
	f.uc = uc
	return f
}

func runParams(persist bool) domsvc.RunParams {
	return domsvc.RunParams{Symbol: "AAPL", Timeframe: "1m", From: base, To: base.Add(10 * time.Hour), Persist: persist}
}

func TestRunPersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	run, err := f.uc.Run(context.Background(), runParams(true))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(run.Bars) != 600 || run.Stats.Bars != 600 {
		t.Fatalf("expected 600 bars, got %d", len(run.Bars))
	}
	if run.Stats.Rise+run.Stats.Fall+run.Stats.Flat != run.Stats.Bars {
		t.Fatalf("trend counts do not cover every bar: %+v", run.Stats)
	}
	if run.Stats.Intervals != len(run.Intervals) {
		t.Fatalf("interval count mismatch: %+v", run.Stats)
	}
	if run.Stats.Intervals == 0 || run.Stats.AnomalyBars == 0 {
		t.Fatalf("expected the volume bursts to be flagged: %+v", run.Stats)
	}
	if len(f.labels.runs) != 1 || len(f.pub.runs) != 1 {
		t.Fatalf("expected one save and one publish, got %d/%d", len(f.labels.runs), len(f.pub.runs))
	}
	if run.RunID == "" || !run.From.Equal(base) {
		t.Fatalf("unexpected run header %+v", run)
	}
}

func TestRunUsesCacheWhenNotPersisting(t *testing.T) {
	f := newFixture(t)
	first, err := f.uc.Run(context.Background(), runParams(false))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.uc.Run(context.Background(), runParams(false))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.candles.calls != 1 {
		t.Fatalf("expected one store read, got %d", f.candles.calls)
	}
	if first.RunID != second.RunID || len(second.Bars) != len(first.Bars) {
		t.Fatalf("cached run differs")
	}
	if len(f.labels.runs) != 0 {
		t.Fatalf("non-persisting run was stored")
	}
}

func TestRunRejectsConcurrentPersist(t *testing.T) {
	f := newFixture(t)
	p := runParams(true)
	key := cache.Key("run", p.Symbol, domrepo.TF1m, p.From.Unix(), p.To.Unix(), f.uc.paramsKey)
	if _, ok, _ := f.cache.TryLock(context.Background(), key, time.Minute); !ok {
		t.Fatalf("could not take lock")
	}
	if _, err := f.uc.Run(context.Background(), p); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := runParams(false)
	bad.Timeframe = "1h"
	if _, err := f.uc.Run(ctx, bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for timeframe, got %v", err)
	}
	bad = runParams(false)
	bad.From, bad.To = bad.To, bad.From
	if _, err := f.uc.Run(ctx, bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for range, got %v", err)
	}

	f.candles.candles = nil
	if _, err := f.uc.Run(ctx, runParams(true)); !errors.Is(err, ErrNoCandles) {
		t.Fatalf("expected ErrNoCandles, got %v", err)
	}

	f.candles.candles = syntheticCandles(100)
	f.labels.err = errors.New("clickhouse down")
	if _, err := f.uc.Run(ctx, runParams(true)); err == nil || errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestNewLabelerRejectsMalformedConfig(t *testing.T) {
	cfg := config.DefaultLabeling()
	cfg.Volume.Laps = []int{3, 3}
	if _, err := NewLabeler(cfg, &fakeCandles{}, &fakeLabels{}, nil, nil, nil, nil); !IsMalformedConfig(err) {
		t.Fatalf("expected malformed config, got %v", err)
	}
	cfg = config.DefaultLabeling()
	cfg.Trend.OrderForFlat = 0
	if _, err := NewLabeler(cfg, &fakeCandles{}, &fakeLabels{}, nil, nil, nil, nil); !IsMalformedConfig(err) {
		t.Fatalf("expected malformed config, got %v", err)
	}
}

func TestComputeSortsAndReportsDiagnostics(t *testing.T) {
	f := newFixture(t)
	candles := syntheticCandles(300)
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	run, err := f.uc.Compute(context.Background(), "AAPL", "1m", candles, true)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := 1; i < len(run.Bars); i++ {
		if !run.Bars[i].Bucket.After(run.Bars[i-1].Bucket) {
			t.Fatalf("bars not sorted at %d", i)
		}
	}
	if run.Diagnostics == nil || len(run.Bars) != 300 {
		t.Fatalf("expected diagnostics")
	}
	if f.candles.calls != 0 || len(f.labels.runs) != 0 {
		t.Fatalf("compute touched storage")
	}

	dup := syntheticCandles(3)
	dup[2].Bucket = dup[1].Bucket
	if _, err := f.uc.Compute(context.Background(), "AAPL", "1m", dup, false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected duplicate bucket error, got %v", err)
	}
}

func TestComputeEmptySeries(t *testing.T) {
	f := newFixture(t)
	run, err := f.uc.Compute(context.Background(), "AAPL", "1m", nil, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(run.Bars) != 0 || len(run.Intervals) != 0 {
		t.Fatalf("expected empty run, got %+v", run)
	}
}

func TestLabelsReadBack(t *testing.T) {
	f := newFixture(t)
	if _, err := f.uc.Run(context.Background(), runParams(true)); err != nil {
		t.Fatalf("run: %v", err)
	}
	bars, err := f.uc.Labels(context.Background(), models.LabelsQuery{
		Symbol: "AAPL",
		TF:     "1m",
		From:   base.Format(time.RFC3339),
		To:     base.Add(59 * time.Minute).Format(time.RFC3339),
		Limit:  1000,
	})
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if len(bars) != 60 {
		t.Fatalf("expected 60 bars, got %d", len(bars))
	}
}

func TestLabelJobHandler(t *testing.T) {
	f := newFixture(t)
	h := NewLabelJobHandler("marketlabel.jobs", f.uc, nopMetrics{}, nil)
	ctx := context.Background()

	if err := h.Handle(ctx, []byte("{not json")); !errors.Is(err, pkgkafka.ErrPermanent) {
		t.Fatalf("expected permanent error for bad payload, got %v", err)
	}
	if err := h.Handle(ctx, []byte(`{"tf":"1m"}`)); !errors.Is(err, pkgkafka.ErrPermanent) {
		t.Fatalf("expected permanent error for missing symbol, got %v", err)
	}

	job := `{"symbol":"AAPL","from":"2024-06-03T09:00:00Z","to":"2024-06-03T19:00:00Z"}`
	if err := h.Handle(ctx, []byte(job)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.labels.runs) != 1 || f.labels.runs[0].Timeframe != "1m" {
		t.Fatalf("expected one stored 1m run, got %+v", f.labels.runs)
	}

	f.labels.err = errors.New("clickhouse down")
	err := h.Handle(ctx, []byte(job))
	if err == nil || errors.Is(err, pkgkafka.ErrPermanent) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestRunReleasesOnlyItsOwnLock(t *testing.T) {
	f := newFixture(t)
	p := runParams(true)
	if _, err := f.uc.Run(context.Background(), p); err != nil {
		t.Fatalf("run: %v", err)
	}
	key := cache.Key("run", p.Symbol, domrepo.TF1m, p.From.Unix(), p.To.Unix(), f.uc.paramsKey)
	if _, ok, _ := f.cache.TryLock(context.Background(), key, time.Minute); !ok {
		t.Fatalf("lock should be free once the run returns")
	}
}

func TestParamsKeyDistinguishesNonFiniteConfigs(t *testing.T) {
	a := config.DefaultLabeling()
	a.Volume.FinalThreshold = math.Inf(1)
	b := a
	b.Trend.OrderForFallRise = 3

	ua, err := NewLabeler(a, &fakeCandles{}, &fakeLabels{}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("labeler a: %v", err)
	}
	ub, err := NewLabeler(b, &fakeCandles{}, &fakeLabels{}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("labeler b: %v", err)
	}
	if ua.paramsKey == ub.paramsKey {
		t.Fatalf("different configs share cache key %s", ua.paramsKey)
	}

	again, err := NewLabeler(a, &fakeCandles{}, &fakeLabels{}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("labeler a again: %v", err)
	}
	if again.paramsKey != ua.paramsKey {
		t.Fatalf("same config hashed to %s and %s", ua.paramsKey, again.paramsKey)
	}
}

func TestNewLabelerRequiresLockTTL(t *testing.T) {
	cfg := config.DefaultLabeling()
	cfg.LockTTL = 0
	if _, err := NewLabeler(cfg, &fakeCandles{}, &fakeLabels{}, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for zero lock ttl")
	}
}
