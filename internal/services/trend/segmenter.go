// Package trend labels every bar of a signal line as rise, fall or flat.
package trend

import (
	"errors"
	"fmt"
	"math"

	"MarketLabel/pkg/logger"
)

// ErrMalformedConfig is returned before any computation when a tunable is missing or inconsistent.
var ErrMalformedConfig = errors.New("malformed configuration")

type Label string

const (
	Rise Label = "rise"
	Fall Label = "fall"
	Flat Label = "flat"
)

// Negate swaps rise and fall. Anything that is not fall becomes fall.
func (l Label) Negate() Label {
	if l == Fall {
		return Rise
	}
	return Fall
}

func labelFor(k ExtremumKind) Label {
	if k == Max {
		return Rise
	}
	return Fall
}

// Params are the segmenter tunables.
type Params struct {
	OrderPrimary int     `json:"order_primary"`
	OrderFlat    int     `json:"order_flat"`
	FlatWindow   int     `json:"flat_window"`
	FlatLow      float64 `json:"flat_low"`
	FlatHigh     float64 `json:"flat_high"`
}

// Validate reports the first inconsistent tunable.
func (p Params) Validate() error {
	switch {
	case p.OrderPrimary < 1:
		return fmt.Errorf("order_primary %d: %w", p.OrderPrimary, ErrMalformedConfig)
	case p.OrderFlat < 1:
		return fmt.Errorf("order_flat %d: %w", p.OrderFlat, ErrMalformedConfig)
	case p.FlatWindow < 1:
		return fmt.Errorf("flat_window %d: %w", p.FlatWindow, ErrMalformedConfig)
	case math.IsNaN(p.FlatLow) || math.IsNaN(p.FlatHigh):
		return fmt.Errorf("flat borders must be numbers: %w", ErrMalformedConfig)
	case p.FlatLow >= p.FlatHigh:
		return fmt.Errorf("flat borders (%g, %g): %w", p.FlatLow, p.FlatHigh, ErrMalformedConfig)
	}
	return nil
}

// Span is a closed position range carrying one label.
type Span struct {
	Start int   `json:"start"`
	End   int   `json:"end"`
	Label Label `json:"label"`
}

// Detail is the full outcome of a segmentation, kept for diagnostics.
type Detail struct {
	Labels         []Label    `json:"labels"`
	Segments       []Span     `json:"segments"`
	Flats          []Span     `json:"flats"`
	PrimaryExtrema []Extremum `json:"primary_extrema"`
	FlatExtrema    []Extremum `json:"flat_extrema"`
}

// Segmenter runs both passes with fixed params.
type Segmenter struct {
	params Params
	log    logger.Interface
}

// NewSegmenter validates params up front. A nil logger discards output.
func NewSegmenter(p Params, log logger.Interface) (*Segmenter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Segmenter{params: p, log: log}, nil
}

// Segment labels every position of signal. The result has the same length as signal.
func Segment(signal []float64, p Params) ([]Label, error) {
	d, err := SegmentDetailed(signal, p)
	if err != nil {
		return nil, err
	}
	return d.Labels, nil
}

// SegmentDetailed is Segment plus the intermediate segments and extrema.
func SegmentDetailed(signal []float64, p Params) (*Detail, error) {
	s, err := NewSegmenter(p, nil)
	if err != nil {
		return nil, err
	}
	return s.Run(signal)
}

// Run executes the rise/fall pass followed by the flat override.
func (s *Segmenter) Run(signal []float64) (*Detail, error) {
	n := len(signal)
	d := &Detail{Labels: []Label{}}
	if n == 0 {
		return d, nil
	}

	mins, maxs, err := FindExtrema(signal, s.params.OrderPrimary)
	if err != nil {
		return nil, err
	}
	d.PrimaryExtrema = mergeExtrema(mins, maxs)
	d.Segments = primarySegments(d.PrimaryExtrema, n)

	labels := make([]Label, n)
	for _, sg := range d.Segments {
		for i := sg.Start; i <= sg.End; i++ {
			labels[i] = sg.Label
		}
	}

	mins, maxs, err = FindExtrema(signal, s.params.OrderFlat)
	if err != nil {
		return nil, err
	}
	d.FlatExtrema = mergeExtrema(mins, maxs)
	d.Flats = flatSpans(signal, d.FlatExtrema, s.params)
	for _, f := range d.Flats {
		for i := f.Start; i <= f.End; i++ {
			labels[i] = Flat
		}
	}
	d.Labels = labels

	s.log.Debug("trend segmented",
		logger.Int("bars", n),
		logger.Int("primary_extrema", len(d.PrimaryExtrema)),
		logger.Int("segments", len(d.Segments)),
		logger.Int("flat_extrema", len(d.FlatExtrema)),
		logger.Int("flat_spans", len(d.Flats)),
	)
	return d, nil
}

// primarySegments builds the ordered rise/fall spans tiling [0, n-1].
// Fewer than two extrema leave no interior segment and the series collapses
// to the single synthetic label.
func primarySegments(ext []Extremum, n int) []Span {
	if len(ext) < 2 {
		last := Rise
		if len(ext) == 1 {
			last = labelFor(ext[0].Kind)
		}
		return []Span{{Start: 0, End: n - 1, Label: last.Negate()}}
	}

	spans := make([]Span, 0, len(ext)+1)
	prev := 0
	for _, e := range ext {
		spans = append(spans, Span{Start: prev, End: e.Pos, Label: labelFor(e.Kind)})
		prev = e.Pos
	}
	last := spans[len(spans)-1].Label
	spans = append(spans, Span{Start: prev, End: n - 1, Label: last.Negate()})
	return spans
}

// flatSpans marks windows of extrema whose mean percent change stays inside
// the open (FlatLow, FlatHigh) band.
func flatSpans(signal []float64, ext []Extremum, p Params) []Span {
	w := p.FlatWindow
	if len(ext) <= w {
		return nil
	}
	pct := make([]float64, len(ext))
	pct[0] = math.NaN()
	for k := 1; k < len(ext); k++ {
		prev := signal[ext[k-1].Pos]
		pct[k] = (signal[ext[k].Pos] - prev) / prev
	}

	var spans []Span
	for k := w - 1; k < len(ext); k++ {
		sum := 0.0
		for j := k - w + 1; j <= k; j++ {
			sum += pct[j]
		}
		v := sum / float64(w)
		if math.IsNaN(v) || !(p.FlatLow < v && v < p.FlatHigh) {
			continue
		}
		// pct[0] is undefined, so any defined mean has k >= w.
		start := k - w
		if start < 0 {
			start = 0
		}
		spans = append(spans, Span{Start: ext[start].Pos, End: ext[k].Pos, Label: Flat})
	}
	return spans
}
