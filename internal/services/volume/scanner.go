// Package volume finds intervals of anomalous trading volume.
package volume

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"MarketLabel/pkg/logger"
)

var (
	// ErrMalformedConfig is returned before any computation when a tunable is missing or inconsistent.
	ErrMalformedConfig = errors.New("malformed configuration")
	// ErrNoReferenceData marks a row whose reference means are all undefined. The row is skipped.
	ErrNoReferenceData = errors.New("no reference data")
)

// Input holds the aligned columns of one series.
type Input struct {
	Times              []time.Time
	Volume             []float64
	RollingMeans       map[int][]float64
	IndicatorPctChange []float64
}

// Params are the scanner tunables.
type Params struct {
	Windows            []int
	IndicatorWindow    int
	IndicatorThreshold float64
	Lookahead          time.Duration
	Step               time.Duration
	Tiers              TierTable
	FinalThreshold     float64
	Workers            int
}

func (p Params) Validate() error {
	if err := p.Tiers.Validate(); err != nil {
		return err
	}
	if len(p.Windows) == 0 {
		return fmt.Errorf("no rolling-mean windows: %w", ErrMalformedConfig)
	}
	for _, w := range p.Windows {
		if w < 1 {
			return fmt.Errorf("window %d: %w", w, ErrMalformedConfig)
		}
	}
	if p.IndicatorWindow < 1 {
		return fmt.Errorf("indicator window %d: %w", p.IndicatorWindow, ErrMalformedConfig)
	}
	if p.Step <= 0 {
		return fmt.Errorf("step %s: %w", p.Step, ErrMalformedConfig)
	}
	if p.Lookahead <= p.Step {
		return fmt.Errorf("lookahead %s must exceed step %s: %w", p.Lookahead, p.Step, ErrMalformedConfig)
	}
	if math.IsNaN(p.IndicatorThreshold) || math.IsNaN(p.FinalThreshold) {
		return fmt.Errorf("thresholds must be numbers: %w", ErrMalformedConfig)
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers %d: %w", p.Workers, ErrMalformedConfig)
	}
	return nil
}

// Interval is a closed time range flagged as anomalous.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Stats summarises one scan.
type Stats struct {
	Candidates         int         `json:"candidates"`
	SkippedNoReference int         `json:"skipped_no_reference"`
	Anomalies          int         `json:"anomalies"`
	LapHits            map[int]int `json:"lap_hits,omitempty"`
}

type Result struct {
	Intervals []Interval `json:"intervals"`
	Stats     Stats      `json:"stats"`
}

// Scanner evaluates candidate rows with fixed params.
type Scanner struct {
	params Params
	log    logger.Interface
}

// NewScanner validates params up front. A nil logger discards output.
func NewScanner(p Params, log logger.Interface) (*Scanner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scanner{params: p, log: log}, nil
}

// Scan returns the anomaly intervals of in, ordered by start.
func Scan(in Input, p Params) (Result, error) {
	s, err := NewScanner(p, nil)
	if err != nil {
		return Result{}, err
	}
	return s.Scan(in)
}

type outcome struct {
	interval Interval
	lap      int
	hit      bool
	err      error
}

func (s *Scanner) Scan(in Input) (Result, error) {
	if err := s.checkInput(in); err != nil {
		return Result{}, err
	}
	res := Result{Intervals: []Interval{}, Stats: Stats{LapHits: map[int]int{}}}

	var candidates []int
	for t, v := range in.IndicatorPctChange {
		if v > s.params.IndicatorThreshold {
			candidates = append(candidates, t)
		}
	}
	res.Stats.Candidates = len(candidates)
	if len(candidates) == 0 {
		return res, nil
	}

	w := newWindowMeans(in.Times, in.Volume)
	outcomes := make([]outcome, len(candidates))
	workers := s.params.Workers
	if workers <= 1 || len(candidates) == 1 {
		for i, t := range candidates {
			outcomes[i] = s.evaluate(in, w, t)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for k := 0; k < workers; k++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					outcomes[i] = s.evaluate(in, w, candidates[i])
				}
			}()
		}
		for i := range candidates {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	for _, o := range outcomes {
		switch {
		case errors.Is(o.err, ErrNoReferenceData):
			res.Stats.SkippedNoReference++
		case o.hit:
			res.Intervals = append(res.Intervals, o.interval)
			res.Stats.LapHits[o.lap]++
		}
	}
	res.Stats.Anomalies = len(res.Intervals)

	s.log.Debug("volume scanned",
		logger.Int("bars", len(in.Times)),
		logger.Int("candidates", res.Stats.Candidates),
		logger.Int("skipped_no_reference", res.Stats.SkippedNoReference),
		logger.Int("anomalies", res.Stats.Anomalies),
	)
	return res, nil
}

// evaluate runs the laps for row t, widest window first.
func (s *Scanner) evaluate(in Input, w *windowMeans, t int) outcome {
	refs := make([]float64, 0, len(s.params.Windows))
	for _, win := range s.params.Windows {
		r := in.RollingMeans[win][t]
		if math.IsNaN(r) || r == 0 {
			continue
		}
		refs = append(refs, r)
	}
	if len(refs) == 0 {
		return outcome{err: ErrNoReferenceData}
	}

	start := in.Times[t]
	for lap := 0; ; lap++ {
		offset := s.params.Lookahead - time.Duration(lap)*s.params.Step
		if offset <= s.params.Step {
			return outcome{}
		}
		end := start.Add(offset)
		cur := w.mean(t, end)
		if math.IsNaN(cur) {
			continue
		}
		strength := math.Inf(-1)
		for _, r := range refs {
			if pc := (cur - r) / r; pc > strength {
				strength = pc
			}
		}
		if strength >= s.params.Tiers.Threshold(lap, s.params.FinalThreshold) {
			return outcome{interval: Interval{Start: start, End: end}, lap: lap, hit: true}
		}
	}
}

func (s *Scanner) checkInput(in Input) error {
	n := len(in.Times)
	if len(in.Volume) != n || len(in.IndicatorPctChange) != n {
		return fmt.Errorf("column lengths %d/%d/%d differ: %w", n, len(in.Volume), len(in.IndicatorPctChange), ErrMalformedConfig)
	}
	for _, win := range s.params.Windows {
		col, ok := in.RollingMeans[win]
		if !ok {
			return fmt.Errorf("rolling mean for window %d missing: %w", win, ErrMalformedConfig)
		}
		if len(col) != n {
			return fmt.Errorf("rolling mean %d has %d rows, want %d: %w", win, len(col), n, ErrMalformedConfig)
		}
	}
	for i := 1; i < n; i++ {
		if !in.Times[i].After(in.Times[i-1]) {
			return fmt.Errorf("timestamps not ascending at row %d: %w", i, ErrMalformedConfig)
		}
	}
	return nil
}

// windowMeans answers "mean volume from row t up to time end" with prefix sums.
// NaN volumes are left out of both sum and count.
type windowMeans struct {
	times []time.Time
	sum   []float64
	count []int
}

func newWindowMeans(times []time.Time, volume []float64) *windowMeans {
	w := &windowMeans{
		times: times,
		sum:   make([]float64, len(volume)+1),
		count: make([]int, len(volume)+1),
	}
	for i, v := range volume {
		w.sum[i+1], w.count[i+1] = w.sum[i], w.count[i]
		if !math.IsNaN(v) {
			w.sum[i+1] += v
			w.count[i+1]++
		}
	}
	return w
}

func (w *windowMeans) mean(from int, end time.Time) float64 {
	hi := sort.Search(len(w.times), func(i int) bool { return w.times[i].After(end) })
	n := w.count[hi] - w.count[from]
	if n <= 0 {
		return math.NaN()
	}
	return (w.sum[hi] - w.sum[from]) / float64(n)
}

// Flags marks every row whose timestamp lies inside any interval, bounds included.
func Flags(times []time.Time, intervals []Interval) []bool {
	flags := make([]bool, len(times))
	for _, iv := range intervals {
		i := sort.Search(len(times), func(i int) bool { return !times[i].Before(iv.Start) })
		for ; i < len(times) && !times[i].After(iv.End); i++ {
			flags[i] = true
		}
	}
	return flags
}
