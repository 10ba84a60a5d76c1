package geometry

import (
	"fmt"
	"slices"
)

// Plan is the immutable schedule of one axis: where each window starts and
// the weight of every position inside a window.
type Plan struct {
	axis    Axis
	starts  []int
	profile []float64
}

// Axis returns the configuration the plan was built from.
func (p Plan) Axis() Axis { return p.axis }

// Len returns the number of windows along the axis.
func (p Plan) Len() int { return len(p.starts) }

// Start returns the offset of window i.
func (p Plan) Start(i int) int { return p.starts[i] }

// Starts returns a copy of all window offsets.
func (p Plan) Starts() []int { return slices.Clone(p.starts) }

// Extent returns the number of samples covered by each window.
func (p Plan) Extent() int { return len(p.profile) }

// Profile returns a copy of the weight profile, Extent values long.
func (p Plan) Profile() []float64 { return slices.Clone(p.profile) }

// Weight returns the profile value at position i inside a window.
func (p Plan) Weight(i int) float64 { return p.profile[i] }

// Truncated reports whether the single window of this axis was cut to the
// axis length.
func (p Plan) Truncated() bool { return p.axis.Window > p.axis.Length }

func (p Plan) String() string {
	return fmt.Sprintf("length=%d window=%d step=%d border=%d extent=%d starts=%v",
		p.axis.Length, p.axis.Window, p.axis.Step, p.axis.Border, p.Extent(), p.starts)
}
