// Package features precomputes the indicator columns the labelers run on.
package features

import "math"

// EMA is the recursive exponential moving average with alpha = 2/(span+1).
// It is seeded with the first defined value and stays NaN until minPeriods
// defined values have been seen. A NaN input after the seed repeats the
// previous average.
func EMA(values []float64, span, minPeriods int) []float64 {
	out := make([]float64, len(values))
	if span < 1 {
		span = 1
	}
	alpha := 2 / (float64(span) + 1)
	avg := math.NaN()
	seen := 0
	for i, v := range values {
		if !math.IsNaN(v) {
			if seen == 0 {
				avg = v
			} else {
				avg = alpha*v + (1-alpha)*avg
			}
			seen++
		}
		if seen >= minPeriods && seen > 0 {
			out[i] = avg
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// MACD returns the MACD line and its signal line.
func MACD(close []float64, short, long, signalSpan, signalPeriods int) (macd, signal []float64) {
	fast := EMA(close, short, short)
	slow := EMA(close, long, long)
	macd = make([]float64, len(close))
	for i := range close {
		macd[i] = fast[i] - slow[i]
	}
	return macd, EMA(macd, signalSpan, signalPeriods)
}
