// Package quilt splits N-dimensional arrays into overlapping tiles and stitches
// processed tiles back into a full-size array.
//
// A Spec fixes the tiling schedule for one spatial shape. Unstitch cuts an
// array of shape (N, C, spatial...) into tiles of shape (N, C, extent...) in
// the order given by TileCoords. Stitch accumulates each tile multiplied by the
// Spec's weight mask, divides by the accumulated weight and returns the
// reconstruction together with the weight totals.
//
// The batch and channel axes are never tiled. Tiles may come back from
// processing with a different channel count; the reconstruction takes the
// channel count of the tiles it is given.
//
// A Spec is immutable and may be shared by concurrent Unstitch and Stitch
// calls.
package quilt

import (
	"errors"
	"fmt"
	"slices"

	"k8s.io/klog/v2"

	"volquilt/pkg/geometry"
	"volquilt/pkg/ndarray"
)

// Params configures NewSpec. Window, Step and Border hold one value per
// spatial axis.
type Params struct {
	SpatialShape    []int
	Window          []int
	Step            []int
	Border          []int
	BorderWeight    float64
	AllowTruncation bool
}

// Uniform returns n copies of v, for Params fields that are the same on every axis.
func Uniform(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Spec is the tiling schedule of one spatial shape.
type Spec struct {
	spatial []int
	plans   []geometry.Plan
	extent  []int
	coords  []TileCoord
	index   map[string]int
	// mask is computed once in NewSpec; shape is extent.
	mask *ndarray.Array
}

// NewSpec validates p and builds the schedule. Invalid parameters yield a
// *geometry.ConfigError and no Spec.
func NewSpec(p Params) (*Spec, error) {
	rank := len(p.SpatialShape)
	if rank == 0 {
		return nil, &geometry.ConfigError{Kind: geometry.ErrInvalidDimension, Axis: -1,
			Detail: "spatial shape has no axes"}
	}
	for _, field := range []struct {
		name   string
		values []int
	}{{"window", p.Window}, {"step", p.Step}, {"border", p.Border}} {
		if len(field.values) != rank {
			return nil, &geometry.ConfigError{Kind: geometry.ErrInvalidDimension, Axis: -1,
				Detail: fmt.Sprintf("%s has %d values for spatial shape %v", field.name, len(field.values), p.SpatialShape)}
		}
	}

	s := &Spec{
		spatial: slices.Clone(p.SpatialShape),
		plans:   make([]geometry.Plan, rank),
		extent:  make([]int, rank),
	}
	for i := range rank {
		axis := geometry.Axis{
			Length:          p.SpatialShape[i],
			Window:          p.Window[i],
			Step:            p.Step[i],
			Border:          p.Border[i],
			BorderWeight:    p.BorderWeight,
			AllowTruncation: p.AllowTruncation,
		}
		if err := axis.Validate(); err != nil {
			var ce *geometry.ConfigError
			if errors.As(err, &ce) {
				ce.Axis = i
			}
			return nil, err
		}
		s.plans[i] = axis.Plan()
		s.extent[i] = s.plans[i].Extent()
	}
	s.coords = buildCoords(s.plans)
	s.index = make(map[string]int, len(s.coords))
	for i, c := range s.coords {
		s.index[c.Key()] = i
	}
	s.mask = buildMask(s.plans, s.extent)

	if klog.V(2).Enabled() {
		for i, plan := range s.plans {
			klog.Infof("quilt: axis %d: %s", i, plan)
		}
		klog.Infof("quilt: spatial shape %v, %d tiles of extent %v", s.spatial, len(s.coords), s.extent)
	}
	return s, nil
}

// buildCoords returns the Cartesian product of the per-axis starts, first axis
// varying slowest.
func buildCoords(plans []geometry.Plan) []TileCoord {
	coords := []TileCoord{{}}
	for _, plan := range plans {
		next := make([]TileCoord, 0, len(coords)*plan.Len())
		for _, c := range coords {
			for j := 0; j < plan.Len(); j++ {
				next = append(next, append(slices.Clip(c), plan.Start(j)))
			}
		}
		coords = next
	}
	return coords
}

// buildMask returns the outer product of the per-axis profiles.
func buildMask(plans []geometry.Plan, extent []int) *ndarray.Array {
	values := []float64{1}
	for _, plan := range plans {
		next := make([]float64, 0, len(values)*plan.Extent())
		for _, v := range values {
			for j := 0; j < plan.Extent(); j++ {
				next = append(next, v*plan.Weight(j))
			}
		}
		values = next
	}
	mask, err := ndarray.FromData(values, extent...)
	if err != nil {
		// Unreachable: values holds exactly prod(extent) entries.
		panic(err)
	}
	return mask
}

// SpatialShape returns the spatial shape the schedule was built for.
func (s *Spec) SpatialShape() []int { return slices.Clone(s.spatial) }

// Rank returns the number of spatial axes.
func (s *Spec) Rank() int { return len(s.spatial) }

// Plan returns the schedule of one spatial axis.
func (s *Spec) Plan(axis int) geometry.Plan { return s.plans[axis] }

// Extent returns the spatial shape of every tile.
func (s *Spec) Extent() []int { return slices.Clone(s.extent) }

// NumTiles returns the number of tile positions.
func (s *Spec) NumTiles() int { return len(s.coords) }

// TileCoords returns every tile position in row-major order, first spatial
// axis varying slowest. Unstitch emits tiles in this order.
func (s *Spec) TileCoords() []TileCoord {
	out := make([]TileCoord, len(s.coords))
	for i, c := range s.coords {
		out[i] = slices.Clone(c)
	}
	return out
}

// Index returns the position of c in TileCoords.
func (s *Spec) Index(c TileCoord) (int, bool) {
	i, ok := s.index[c.Key()]
	return i, ok
}

// WeightMask returns a copy of the per-tile weight mask, shape Extent().
func (s *Spec) WeightMask() *ndarray.Array { return s.mask.Clone() }

// checkArray verifies arr is (N, C, spatial...) for this Spec.
func (s *Spec) checkArray(op string, arr *ndarray.Array) error {
	if arr == nil {
		return &ShapeMismatchError{Op: op, Want: s.spatial, Detail: "nil array"}
	}
	if arr.Rank() != len(s.spatial)+2 || !slices.Equal(arr.SpatialShape(), s.spatial) {
		return &ShapeMismatchError{Op: op, Want: s.spatial, Got: arr.Shape(),
			Detail: "array must be (N, C, spatial...) with the Spec's spatial shape"}
	}
	return nil
}
