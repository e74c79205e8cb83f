package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketLabel/internal/domain/models"
	domrepo "MarketLabel/internal/domain/repository"
	domsvc "MarketLabel/internal/domain/service"
	"MarketLabel/internal/services/features"
	"MarketLabel/internal/services/trend"
	"MarketLabel/internal/services/volume"
	"MarketLabel/pkg/cache"
	"MarketLabel/pkg/config"
	"MarketLabel/pkg/logger"
	"MarketLabel/pkg/util"
)

var (
	// ErrInvalidInput covers caller mistakes: unknown timeframe, empty symbol, bad range, unordered candles.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoCandles means the store has nothing in the requested range.
	ErrNoCandles = errors.New("no candles in range")
	// ErrRunInProgress means another worker holds the lock for the same run.
	ErrRunInProgress = errors.New("label run already in progress")
)

// IsMalformedConfig reports whether err comes from labeling params validation.
func IsMalformedConfig(err error) bool {
	return errors.Is(err, trend.ErrMalformedConfig) || errors.Is(err, volume.ErrMalformedConfig)
}

// Labeler loads candles, derives both labelings and stores the result.
type Labeler struct {
	candles domrepo.CandleStore
	labels  domrepo.LabelStore
	pub     domrepo.Publisher
	cache   cache.Service
	metrics domrepo.Metrics
	log     logger.Interface

	cfg       config.Labeling
	segmenter *trend.Segmenter
	scanner   *volume.Scanner
	paramsKey string

	now   func() time.Time
	newID func() string
}

// NewLabeler validates the labeling config up front. c may be nil to disable caching.
func NewLabeler(cfg config.Labeling, candles domrepo.CandleStore, labels domrepo.LabelStore, pub domrepo.Publisher, c cache.Service, m domrepo.Metrics, log logger.Interface) (*Labeler, error) {
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("labeling.lock_ttl must be positive, got %s", cfg.LockTTL)
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = nopMetrics{}
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	tp := TrendParams(cfg)
	seg, err := trend.NewSegmenter(tp, log)
	if err != nil {
		return nil, err
	}
	vp, err := VolumeParams(cfg)
	if err != nil {
		return nil, err
	}
	scan, err := volume.NewScanner(vp, log)
	if err != nil {
		return nil, err
	}

	return &Labeler{
		candles:   candles,
		labels:    labels,
		pub:       pub,
		cache:     c,
		metrics:   m,
		log:       log,
		cfg:       cfg,
		segmenter: seg,
		scanner:   scan,
		paramsKey: paramsKey(cfg.Features, tp, vp),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// Run labels a stored series. Without Persist a cached result may be returned.
func (uc *Labeler) Run(ctx context.Context, p domsvc.RunParams) (*models.LabelRun, error) {
	start := uc.now()
	run, err := uc.run(ctx, p)
	result := "ok"
	if err != nil {
		result = "error"
	}
	uc.metrics.RecordRun(p.Symbol, result)
	uc.metrics.RecordLatency("label_run", time.Since(start).Seconds())
	return run, err
}

func (uc *Labeler) run(ctx context.Context, p domsvc.RunParams) (*models.LabelRun, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required: %w", ErrInvalidInput)
	}
	if p.Timeframe == "" {
		p.Timeframe = uc.cfg.Timeframe
	}
	tf := domrepo.Timeframe(p.Timeframe)
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("timeframe %q: %w", p.Timeframe, ErrInvalidInput)
	}
	from, to, err := util.ResolveRange(p.From, p.To, uc.cfg.Lookback, tf.Duration(), uc.now())
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}

	key := cache.Key("run", p.Symbol, tf, from.Unix(), to.Unix(), uc.paramsKey)
	if uc.cache != nil && !p.Persist {
		var cached models.LabelRun
		if err := uc.cache.Get(ctx, key, &cached); err == nil {
			uc.log.Debug("label run cache hit", logger.String("key", key))
			return &cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			uc.log.Warn("label run cache read failed", logger.String("key", key), logger.Error(err))
		}
	}
	if uc.cache != nil && p.Persist {
		token, ok, err := uc.cache.TryLock(ctx, key, uc.cfg.LockTTL)
		if err != nil {
			uc.log.Warn("label run lock failed", logger.String("key", key), logger.Error(err))
		} else if !ok {
			return nil, fmt.Errorf("%s %s: %w", p.Symbol, tf, ErrRunInProgress)
		} else {
			defer func() { _ = uc.cache.Unlock(context.WithoutCancel(ctx), key, token) }()
		}
	}

	candles, err := uc.candles.GetCandles(ctx, p.Symbol, from, to, tf)
	if err != nil {
		uc.metrics.RecordError("candles_load")
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s [%s, %s]: %w", p.Symbol, tf, from.Format(time.RFC3339), to.Format(time.RFC3339), ErrNoCandles)
	}

	run, err := uc.compute(p.Symbol, string(tf), candles, false)
	if err != nil {
		return nil, err
	}
	run.From, run.To = from, to

	if p.Persist {
		if err := uc.labels.SaveRun(ctx, run); err != nil {
			uc.metrics.RecordError("labels_store")
			return nil, fmt.Errorf("save run: %w", err)
		}
		if err := uc.pub.PublishRun(ctx, run); err != nil {
			uc.metrics.RecordError("publish")
			uc.log.Error("publish label run failed", logger.String("run_id", run.RunID), logger.Error(err))
		}
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, run, uc.cfg.CacheTTL); err != nil {
			uc.log.Warn("label run cache write failed", logger.String("key", key), logger.Error(err))
		}
	}

	uc.log.Info("label run done",
		logger.String("run_id", run.RunID),
		logger.String("symbol", run.Symbol),
		logger.String("tf", run.Timeframe),
		logger.Int("bars", run.Stats.Bars),
		logger.Int("intervals", run.Stats.Intervals),
		logger.Bool("persist", p.Persist),
	)
	return run, nil
}

// Compute labels caller-supplied candles without touching storage or cache.
func (uc *Labeler) Compute(ctx context.Context, symbol, tf string, candles []models.Candle, debug bool) (*models.LabelRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("symbol required: %w", ErrInvalidInput)
	}
	if tf == "" {
		tf = uc.cfg.Timeframe
	}
	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Bucket.Before(sorted[j].Bucket) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Bucket.Equal(sorted[i-1].Bucket) {
			return nil, fmt.Errorf("duplicate bucket %s: %w", sorted[i].Bucket.Format(time.RFC3339), ErrInvalidInput)
		}
	}
	for i := range sorted {
		if sorted[i].Symbol == "" {
			sorted[i].Symbol = symbol
		}
	}

	start := uc.now()
	run, err := uc.compute(symbol, tf, sorted, debug)
	uc.metrics.RecordLatency("label_compute", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(sorted) > 0 {
		run.From, run.To = sorted[0].Bucket, sorted[len(sorted)-1].Bucket
	}
	return run, nil
}

// compute runs features, both labelers and the merge over candles sorted by bucket.
func (uc *Labeler) compute(symbol, tf string, candles []models.Candle, debug bool) (*models.LabelRun, error) {
	closes, vols := features.Columns(candles)
	times := make([]time.Time, len(candles))
	for i, c := range candles {
		times[i] = c.Bucket
	}

	f := uc.cfg.Features
	_, signal := features.MACD(closes, f.DecaySM, f.DecayLM, f.DecaySignal, f.PeriodSignal)
	means, indicator := features.VolumeFrame(vols, uc.cfg.Volume.ColumnsRollingMean, uc.cfg.Volume.MeanIndicator)

	var (
		wg        sync.WaitGroup
		detail    *trend.Detail
		scan      volume.Result
		trendErr  error
		volumeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		detail, trendErr = uc.segmenter.Run(signal)
	}()
	go func() {
		defer wg.Done()
		scan, volumeErr = uc.scanner.Scan(volume.Input{
			Times:              times,
			Volume:             vols,
			RollingMeans:       means,
			IndicatorPctChange: indicator,
		})
	}()
	wg.Wait()
	if err := errors.Join(trendErr, volumeErr); err != nil {
		uc.metrics.RecordError("compute")
		return nil, fmt.Errorf("compute labels: %w", err)
	}

	flags := volume.Flags(times, scan.Intervals)
	trendCol := make([]string, len(detail.Labels))
	for i, l := range detail.Labels {
		trendCol[i] = string(l)
	}
	bars, err := features.Merge(candles, trendCol, flags)
	if err != nil {
		return nil, err
	}

	run := &models.LabelRun{
		RunID:     uc.newID(),
		Symbol:    symbol,
		Timeframe: tf,
		Bars:      bars,
		Intervals: make([]models.AnomalyInterval, len(scan.Intervals)),
		CreatedAt: uc.now().UTC(),
	}
	for i, iv := range scan.Intervals {
		run.Intervals[i] = models.AnomalyInterval{Start: iv.Start, End: iv.End}
	}
	run.Stats = stats(bars, scan)
	if debug {
		run.Diagnostics = diagnostics(detail, scan)
	}

	uc.metrics.RecordLabels(models.TrendRise, run.Stats.Rise)
	uc.metrics.RecordLabels(models.TrendFall, run.Stats.Fall)
	uc.metrics.RecordLabels(models.TrendFlat, run.Stats.Flat)
	uc.metrics.RecordIntervals(symbol, run.Stats.Intervals)
	return run, nil
}

// Labels reads stored labels back. Empty bounds default to the configured lookback.
func (uc *Labeler) Labels(ctx context.Context, q models.LabelsQuery) ([]models.LabeledBar, error) {
	if q.Symbol == "" {
		return nil, fmt.Errorf("symbol required: %w", ErrInvalidInput)
	}
	tf := domrepo.NormalizeTimeframe(q.TF)
	to := util.ParseTimeDefault(q.To, uc.now())
	from := util.ParseTimeDefault(q.From, to.Add(-uc.cfg.Lookback))
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to: %w", ErrInvalidInput)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5000
	}
	start := uc.now()
	out, err := uc.labels.GetLabels(ctx, q.Symbol, tf, from, to, limit)
	uc.metrics.RecordLatency("labels_read", time.Since(start).Seconds())
	if err != nil {
		uc.metrics.RecordError("labels_read")
		return nil, fmt.Errorf("get labels: %w", err)
	}
	return out, nil
}

func stats(bars []models.LabeledBar, scan volume.Result) models.RunStats {
	s := models.RunStats{
		Bars:               len(bars),
		Intervals:          len(scan.Intervals),
		Candidates:         scan.Stats.Candidates,
		SkippedNoReference: scan.Stats.SkippedNoReference,
	}
	for _, b := range bars {
		switch b.Trend {
		case models.TrendRise:
			s.Rise++
		case models.TrendFall:
			s.Fall++
		case models.TrendFlat:
			s.Flat++
		}
		if b.VolumeAnomaly {
			s.AnomalyBars++
		}
	}
	return s
}

func diagnostics(d *trend.Detail, scan volume.Result) *models.Diagnostics {
	spans := func(in []trend.Span) []models.Span {
		out := make([]models.Span, len(in))
		for i, s := range in {
			out[i] = models.Span{Start: s.Start, End: s.End, Label: string(s.Label)}
		}
		return out
	}
	positions := func(in []trend.Extremum) []int {
		out := make([]int, len(in))
		for i, e := range in {
			out[i] = e.Pos
		}
		return out
	}
	return &models.Diagnostics{
		Segments:       spans(d.Segments),
		Flats:          spans(d.Flats),
		PrimaryExtrema: positions(d.PrimaryExtrema),
		FlatExtrema:    positions(d.FlatExtrema),
		LapHits:        scan.Stats.LapHits,
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordRun(string, string)      {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordLabels(string, int)      {}
func (nopMetrics) RecordIntervals(string, int)   {}

type nopPublisher struct{}

func (nopPublisher) PublishRun(context.Context, *models.LabelRun) error { return nil }
func (nopPublisher) Close() error                                       { return nil }

var _ domsvc.Labeler = (*Labeler)(nil)
