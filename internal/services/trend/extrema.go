package trend

import (
	"fmt"
	"math"
)

// ExtremumKind tells a local minimum from a local maximum.
type ExtremumKind int

const (
	Min ExtremumKind = iota
	Max
)

func (k ExtremumKind) String() string {
	if k == Max {
		return "max"
	}
	return "min"
}

// Extremum is a position in the series together with its kind.
type Extremum struct {
	Pos  int          `json:"pos"`
	Kind ExtremumKind `json:"kind"`
}

// FindExtrema returns the ascending positions of strict local minima and maxima.
// A position qualifies only when every neighbour within radius exists and is
// strictly greater (minimum) or strictly smaller (maximum). NaN never qualifies.
func FindExtrema(values []float64, radius int) (mins, maxs []int, err error) {
	if radius < 1 {
		return nil, nil, fmt.Errorf("extrema radius %d: %w", radius, ErrMalformedConfig)
	}
	n := len(values)
	for i := radius; i < n-radius; i++ {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		isMin, isMax := true, true
		for j := i - radius; j <= i+radius && (isMin || isMax); j++ {
			if j == i {
				continue
			}
			u := values[j]
			if !(v < u) {
				isMin = false
			}
			if !(v > u) {
				isMax = false
			}
		}
		switch {
		case isMin:
			mins = append(mins, i)
		case isMax:
			maxs = append(maxs, i)
		}
	}
	return mins, maxs, nil
}

// mergeExtrema interleaves two ascending position lists into one ordered list.
func mergeExtrema(mins, maxs []int) []Extremum {
	out := make([]Extremum, 0, len(mins)+len(maxs))
	i, j := 0, 0
	for i < len(mins) || j < len(maxs) {
		if j >= len(maxs) || (i < len(mins) && mins[i] < maxs[j]) {
			out = append(out, Extremum{Pos: mins[i], Kind: Min})
			i++
			continue
		}
		out = append(out, Extremum{Pos: maxs[j], Kind: Max})
		j++
	}
	return out
}
