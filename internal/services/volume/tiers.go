package volume

import (
	"fmt"
	"math"
)

// Tier applies Threshold to every lap below Laps not already claimed by an earlier tier.
type Tier struct {
	Laps      int     `json:"laps" yaml:"laps"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// TierTable is the escalation schedule, ordered by ascending lap bound.
type TierTable []Tier

// NewTierTable zips parallel lap bounds and thresholds.
func NewTierTable(laps []int, thresholds []float64) (TierTable, error) {
	if len(laps) != len(thresholds) {
		return nil, fmt.Errorf("tier table: %d laps for %d thresholds: %w", len(laps), len(thresholds), ErrMalformedConfig)
	}
	t := make(TierTable, len(laps))
	for i := range laps {
		t[i] = Tier{Laps: laps[i], Threshold: thresholds[i]}
	}
	return t, t.Validate()
}

func (t TierTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("tier table is empty: %w", ErrMalformedConfig)
	}
	for i, tier := range t {
		if tier.Laps < 1 {
			return fmt.Errorf("tier %d: lap bound %d: %w", i, tier.Laps, ErrMalformedConfig)
		}
		if math.IsNaN(tier.Threshold) {
			return fmt.Errorf("tier %d: threshold is NaN: %w", i, ErrMalformedConfig)
		}
		if i > 0 && tier.Laps <= t[i-1].Laps {
			return fmt.Errorf("tier %d: lap bound %d not above %d: %w", i, tier.Laps, t[i-1].Laps, ErrMalformedConfig)
		}
	}
	return nil
}

// Threshold returns the bar a lap must clear: the first tier whose bound
// exceeds lap, or final once the lap is past every tier.
func (t TierTable) Threshold(lap int, final float64) float64 {
	for _, tier := range t {
		if lap < tier.Laps {
			return tier.Threshold
		}
	}
	return final
}
