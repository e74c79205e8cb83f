package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal      *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	labelsTotal    *prometheus.CounterVec
	intervalsTotal *prometheus.CounterVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketlabel_runs_total",
				Help: "Total number of labeling runs",
			},
			[]string{"symbol", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketlabel_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketlabel_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		labelsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketlabel_labels_total",
				Help: "Bars labeled per trend",
			},
			[]string{"trend"},
		),
		intervalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketlabel_anomaly_intervals_total",
				Help: "Volume anomaly intervals found",
			},
			[]string{"symbol"},
		),
	}
}

// RecordRun counts a finished run; result is "ok" or "error".
func (r *Recorder) RecordRun(symbol, result string) {
	r.runsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordLabels(trend string, n int) {
	r.labelsTotal.WithLabelValues(trend).Add(float64(n))
}

func (r *Recorder) RecordIntervals(symbol string, n int) {
	r.intervalsTotal.WithLabelValues(symbol).Add(float64(n))
}
