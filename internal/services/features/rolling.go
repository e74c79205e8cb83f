package features

import "math"

// RollingMean averages the trailing window ending at each position.
// The result is NaN until the window is full, and whenever it holds a NaN.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	nans := 0
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= window {
			old := values[i-window]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if window < 1 || i < window-1 || nans > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// PctChange is v[i]/v[i-1] - 1. The first entry is NaN.
func PctChange(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i]/values[i-1] - 1
	}
	return out
}
