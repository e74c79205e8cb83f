package volume

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func minutes(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func baseParams() Params {
	return Params{
		Windows:            []int{10},
		IndicatorWindow:    5,
		IndicatorThreshold: 0.05,
		Lookahead:          60 * time.Minute,
		Step:               5 * time.Minute,
		Tiers:              TierTable{{Laps: 3, Threshold: 0.3}},
		FinalThreshold:     0.5,
	}
}

func TestScanConfirmsAtFirstLap(t *testing.T) {
	n := 100
	indicator := fill(n, 0)
	indicator[0] = 0.1
	in := Input{
		Times:              minutes(n),
		Volume:             fill(n, 150),
		RollingMeans:       map[int][]float64{10: fill(n, 100)},
		IndicatorPctChange: indicator,
	}
	res, err := Scan(in, baseParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Interval{{Start: t0, End: t0.Add(60 * time.Minute)}}
	if !reflect.DeepEqual(res.Intervals, want) {
		t.Fatalf("intervals = %+v, want %+v", res.Intervals, want)
	}
	if res.Stats.LapHits[0] != 1 {
		t.Fatalf("expected a lap 0 hit, got %v", res.Stats.LapHits)
	}
}

func TestScanEscalatesToFinalThreshold(t *testing.T) {
	n := 100
	volume := fill(n, 100)
	for i := 0; i < 10; i++ {
		volume[i] = 300
	}
	indicator := fill(n, 0)
	indicator[0] = 1
	in := Input{
		Times:              minutes(n),
		Volume:             volume,
		RollingMeans:       map[int][]float64{10: fill(n, 100)},
		IndicatorPctChange: indicator,
	}
	p := baseParams()
	p.Tiers = TierTable{{Laps: 1, Threshold: 0.5}}
	p.FinalThreshold = 0.4

	res, err := Scan(in, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// lap 3 spans rows 0..45: (10*300 + 36*100) / 46 is about 143.5
	want := []Interval{{Start: t0, End: t0.Add(45 * time.Minute)}}
	if !reflect.DeepEqual(res.Intervals, want) {
		t.Fatalf("intervals = %+v, want %+v", res.Intervals, want)
	}
	if res.Stats.LapHits[3] != 1 {
		t.Fatalf("expected a lap 3 hit, got %v", res.Stats.LapHits)
	}
}

func TestScanQuietIndicator(t *testing.T) {
	n := 50
	in := Input{
		Times:              minutes(n),
		Volume:             fill(n, 1000),
		RollingMeans:       map[int][]float64{10: fill(n, 1)},
		IndicatorPctChange: fill(n, 0.01),
	}
	res, err := Scan(in, baseParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Intervals) != 0 || res.Stats.Candidates != 0 {
		t.Fatalf("expected nothing, got %+v", res)
	}
	for i, f := range Flags(in.Times, res.Intervals) {
		if f {
			t.Fatalf("flag %d set", i)
		}
	}
}

func TestScanSkipsRowsWithoutReference(t *testing.T) {
	n := 30
	means := fill(n, math.NaN())
	means[20] = 0
	indicator := fill(n, 0)
	indicator[3] = 1
	indicator[20] = 1
	in := Input{
		Times:              minutes(n),
		Volume:             fill(n, 500),
		RollingMeans:       map[int][]float64{10: means},
		IndicatorPctChange: indicator,
	}
	res, err := Scan(in, baseParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stats.SkippedNoReference != 2 || len(res.Intervals) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestScanRejectsMalformedConfig(t *testing.T) {
	n := 10
	in := Input{
		Times:              minutes(n),
		Volume:             fill(n, 1),
		RollingMeans:       map[int][]float64{10: fill(n, 1)},
		IndicatorPctChange: fill(n, 1),
	}
	tests := []struct {
		name   string
		mutate func(*Params, *Input)
	}{
		{"empty tiers", func(p *Params, _ *Input) { p.Tiers = nil }},
		{"no windows", func(p *Params, _ *Input) { p.Windows = nil }},
		{"lookahead not above step", func(p *Params, _ *Input) { p.Lookahead = p.Step }},
		{"zero step", func(p *Params, _ *Input) { p.Step = 0 }},
		{"missing window", func(p *Params, _ *Input) { p.Windows = []int{10, 30} }},
		{"short column", func(_ *Params, in *Input) { in.Volume = in.Volume[:5] }},
		{"unordered times", func(_ *Params, in *Input) {
			in.Times = minutes(n)
			in.Times[4], in.Times[5] = in.Times[5], in.Times[4]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseParams()
			cp := in
			cp.Times = minutes(n)
			tt.mutate(&p, &cp)
			if _, err := Scan(cp, p); !errors.Is(err, ErrMalformedConfig) {
				t.Fatalf("expected ErrMalformedConfig, got %v", err)
			}
		})
	}
}

func randomInput(n int, seed int64) Input {
	rng := rand.New(rand.NewSource(seed))
	volume := make([]float64, n)
	indicator := make([]float64, n)
	means := map[int][]float64{10: make([]float64, n), 30: make([]float64, n)}
	for i := 0; i < n; i++ {
		volume[i] = 50 + rng.Float64()*200
		indicator[i] = rng.Float64()*0.2 - 0.05
		means[10][i] = 80 + rng.Float64()*40
		means[30][i] = 90 + rng.Float64()*20
		if i < 30 {
			means[30][i] = math.NaN()
		}
	}
	return Input{Times: minutes(n), Volume: volume, RollingMeans: means, IndicatorPctChange: indicator}
}

func TestScanDeterministic(t *testing.T) {
	in := randomInput(2000, 11)
	p := baseParams()
	p.Windows = []int{10, 30}
	p.Tiers = TierTable{{Laps: 3, Threshold: 0.6}, {Laps: 6, Threshold: 0.4}}
	p.FinalThreshold = 0.3

	first, err := Scan(in, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Scan(in, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated scans differ")
	}

	p.Workers = 4
	parallel, err := Scan(in, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, parallel) {
		t.Fatalf("parallel scan differs from sequential")
	}
	if len(first.Intervals) == 0 {
		t.Fatalf("expected some anomalies in random data")
	}

	flags := Flags(in.Times, first.Intervals)
	for _, iv := range first.Intervals {
		if iv.End.Before(iv.Start) {
			t.Fatalf("interval ends before it starts: %+v", iv)
		}
		for i, ts := range in.Times {
			if !ts.Before(iv.Start) && !ts.After(iv.End) && !flags[i] {
				t.Fatalf("row %d inside %+v not flagged", i, iv)
			}
		}
	}
}

func TestFlagsOverlapAndBounds(t *testing.T) {
	times := minutes(10)
	intervals := []Interval{
		{Start: times[2], End: times[4]},
		{Start: times[3], End: times[5]},
		{Start: times[8].Add(30 * time.Second), End: times[9].Add(time.Hour)},
	}
	got := Flags(times, intervals)
	want := []bool{false, false, true, true, true, true, false, false, false, true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("flags = %v, want %v", got, want)
	}
}
