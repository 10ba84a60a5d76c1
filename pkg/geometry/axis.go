// Package geometry plans how a single axis of an array is covered by
// overlapping windows, and how much each position inside a window is trusted
// when the windows are blended back together.
//
// Windows are laid out from the start of the axis every Step samples. When the
// axis length is not reached exactly, one last window is pinned to the end of
// the axis, so the whole axis is always covered without padding. The final
// window overlaps its neighbour more than the others do.
//
// The weight profile falls off linearly towards both window edges over Border
// samples, from 1 down to BorderWeight at the outermost sample. Positions near
// a window edge lack context and so count for less than the same position seen
// from the middle of an overlapping neighbour.
package geometry

import (
	"slices"
)

// Axis is the tiling configuration of one spatial axis.
type Axis struct {
	Length int
	Window int
	Step   int
	Border int
	// BorderWeight is the weight of the outermost sample of each border, in [0, 1].
	BorderWeight float64
	// AllowTruncation accepts a Window larger than Length; the single window on
	// such an axis is cut down to Length.
	AllowTruncation bool
}

// NewAxis returns a validated Axis.
func NewAxis(length, window, step, border int, borderWeight float64, allowTruncation bool) (Axis, error) {
	a := Axis{
		Length:          length,
		Window:          window,
		Step:            step,
		Border:          border,
		BorderWeight:    borderWeight,
		AllowTruncation: allowTruncation,
	}
	if err := a.Validate(); err != nil {
		return Axis{}, err
	}
	return a, nil
}

// Validate checks the axis invariants. Failures are *ConfigError with Axis -1.
func (a Axis) Validate() error {
	switch {
	case a.Length <= 0:
		return configErrorf(ErrInvalidDimension, "length must be positive, got %d", a.Length)
	case a.Window <= 0:
		return configErrorf(ErrInvalidDimension, "window must be positive, got %d", a.Window)
	case a.Step <= 0:
		return configErrorf(ErrInvalidDimension, "step must be positive, got %d", a.Step)
	case a.Step > a.Window:
		return configErrorf(ErrInvalidDimension, "step=%d larger than window=%d leaves gaps", a.Step, a.Window)
	case a.Border < 0:
		return configErrorf(ErrInvalidDimension, "border must not be negative, got %d", a.Border)
	}
	// Written as a negated range test so NaN is rejected too.
	if !(a.BorderWeight >= 0 && a.BorderWeight <= 1) {
		return configErrorf(ErrInvalidBorderWeight, "border weight %g not in [0, 1]", a.BorderWeight)
	}
	if 2*a.Border >= a.Window {
		return configErrorf(ErrBorderTooWide, "2*border=%d must be less than window=%d", 2*a.Border, a.Window)
	}
	if a.Window > a.Length && !a.AllowTruncation {
		return configErrorf(ErrWindowExceedsLength, "window=%d > length=%d and truncation is disabled", a.Window, a.Length)
	}
	return nil
}

// Extent is the number of samples each window actually covers: Window, or
// Length on a truncated axis.
func (a Axis) Extent() int {
	return min(a.Window, a.Length)
}

// Starts returns the window start offsets, strictly increasing, first 0 and
// last Length-Extent.
func (a Axis) Starts() []int {
	if a.Window >= a.Length {
		return []int{0}
	}
	last := a.Length - a.Window
	starts := make([]int, 0, last/a.Step+2)
	for s := 0; s <= last; s += a.Step {
		starts = append(starts, s)
	}
	if starts[len(starts)-1] != last {
		starts = append(starts, last)
	}
	return starts
}

// Profile returns the Window-long weight curve: BorderWeight at both ends,
// rising linearly to exactly 1 at index Border and Window-1-Border.
func (a Axis) Profile() []float64 {
	p := make([]float64, a.Window)
	for i := range p {
		p[i] = 1
	}
	for i := 0; i < a.Border; i++ {
		w := a.BorderWeight + (1-a.BorderWeight)*float64(i)/float64(a.Border)
		p[i] = w
		p[a.Window-1-i] = w
	}
	return p
}

// Plan computes the axis schedule.
func (a Axis) Plan() Plan {
	profile := a.Profile()
	return Plan{
		axis:    a,
		starts:  a.Starts(),
		profile: slices.Clip(profile[:a.Extent()]),
	}
}

// PlanAxis validates the configuration and returns its Plan.
func PlanAxis(length, window, step, border int, borderWeight float64, allowTruncation bool) (Plan, error) {
	a, err := NewAxis(length, window, step, border, borderWeight, allowTruncation)
	if err != nil {
		return Plan{}, err
	}
	return a.Plan(), nil
}
