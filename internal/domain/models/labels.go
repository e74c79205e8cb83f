package models

import "time"

// Trend labels as stored and published.
const (
	TrendRise = "rise"
	TrendFall = "fall"
	TrendFlat = "flat"
)

// LabeledBar is a candle joined with its trend label and anomaly flag.
type LabeledBar struct {
	Bucket        time.Time `json:"bucket"`
	Symbol        string    `json:"symbol"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	Trend         string    `json:"trend"`
	VolumeAnomaly bool      `json:"volume_anomaly"`
}

type AnomalyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RunStats counts what a labeling run produced.
type RunStats struct {
	Bars               int `json:"bars"`
	Rise               int `json:"rise"`
	Fall               int `json:"fall"`
	Flat               int `json:"flat"`
	AnomalyBars        int `json:"anomaly_bars"`
	Intervals          int `json:"intervals"`
	Candidates         int `json:"candidates"`
	SkippedNoReference int `json:"skipped_no_reference"`
}

type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

// Diagnostics exposes the intermediate steps of a run for debugging.
type Diagnostics struct {
	Segments       []Span      `json:"segments"`
	Flats          []Span      `json:"flats"`
	PrimaryExtrema []int       `json:"primary_extrema"`
	FlatExtrema    []int       `json:"flat_extrema"`
	LapHits        map[int]int `json:"lap_hits,omitempty"`
}

// LabelRun is the outcome of labeling one symbol over one time range.
type LabelRun struct {
	RunID       string            `json:"run_id"`
	Symbol      string            `json:"symbol"`
	Timeframe   string            `json:"tf"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Bars        []LabeledBar      `json:"bars"`
	Intervals   []AnomalyInterval `json:"intervals"`
	Stats       RunStats          `json:"stats"`
	Diagnostics *Diagnostics      `json:"diagnostics,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// LabelRunEvent is the message published after a run is stored.
type LabelRunEvent struct {
	Type      string            `json:"type"`
	RunID     string            `json:"run_id"`
	Symbol    string            `json:"symbol"`
	Timeframe string            `json:"tf"`
	From      time.Time         `json:"from"`
	To        time.Time         `json:"to"`
	Bars      int               `json:"bars"`
	Rise      int               `json:"rise"`
	Fall      int               `json:"fall"`
	Flat      int               `json:"flat"`
	Anomalies int               `json:"anomalies"`
	Intervals []AnomalyInterval `json:"intervals"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewLabelRunEvent summarises run for publishing.
func NewLabelRunEvent(run *LabelRun) LabelRunEvent {
	return LabelRunEvent{
		Type:      "label_run",
		RunID:     run.RunID,
		Symbol:    run.Symbol,
		Timeframe: run.Timeframe,
		From:      run.From,
		To:        run.To,
		Bars:      run.Stats.Bars,
		Rise:      run.Stats.Rise,
		Fall:      run.Stats.Fall,
		Flat:      run.Stats.Flat,
		Anomalies: run.Stats.AnomalyBars,
		Intervals: run.Intervals,
		CreatedAt: run.CreatedAt,
	}
}
