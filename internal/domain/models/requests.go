package models

import "time"

// Requests for the labeling HTTP endpoints and the jobs topic.

type RunRequest struct {
	Symbol  string    `json:"symbol" validate:"required"`
	TF      string    `json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Persist bool      `json:"persist"`
}

type ComputeRequest struct {
	Symbol  string   `json:"symbol" validate:"required"`
	TF      string   `json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	Candles []Candle `json:"candles" validate:"required,min=1,max=200000"`
	Debug   bool     `json:"debug"`
}

type LabelsQuery struct {
	Symbol string `query:"symbol" validate:"required"`
	TF     string `query:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From   string `query:"from"`
	To     string `query:"to"`
	Limit  int    `query:"limit" default:"5000" validate:"gte=1,lte=100000"`
}

// LabelJobType tags label jobs on queues that carry several message types.
const LabelJobType = "label_job"

// LabelJob is a labeling request read from the jobs topic.
type LabelJob struct {
	Symbol string    `json:"symbol" validate:"required"`
	TF     string    `json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

type CandlesQuery struct {
	Symbol string `query:"symbol" validate:"required"`
	TF     string `query:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From   string `query:"from"`
	To     string `query:"to"`
	Limit  int    `query:"limit" default:"10000" validate:"gte=1,lte=50000"`
}
