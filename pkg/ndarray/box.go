package ndarray

import (
	"github.com/pkg/errors"
)

// BoxRuns walks an axis-aligned box over the trailing axes of a. The box starts
// at origin and spans extent; leading axes not named by origin are taken whole.
//
// For every contiguous run along the last axis, fn receives the offset of the
// run in a's buffer, the offset of the same run in a dense array holding only
// the box (shape = leading dimensions followed by extent), and the run length.
// Runs are visited in row-major order.
func (a *Array) BoxRuns(origin, extent []int, fn func(outer, inner, n int)) error {
	if err := a.checkBox(origin, extent); err != nil {
		return err
	}
	lead := len(a.shape) - len(origin)
	boxShape := make([]int, len(a.shape))
	start := make([]int, len(a.shape))
	copy(boxShape, a.shape[:lead])
	copy(boxShape[lead:], extent)
	copy(start[lead:], origin)
	boxStrides := computeStrides(boxShape)

	last := len(boxShape) - 1
	runLen := boxShape[last]
	index := make([]int, len(boxShape))
	for {
		outer, inner := 0, 0
		for axis, i := range index {
			outer += (start[axis] + i) * a.strides[axis]
			inner += i * boxStrides[axis]
		}
		fn(outer, inner, runLen)

		// Odometer increment over every axis but the last.
		axis := last - 1
		for ; axis >= 0; axis-- {
			index[axis]++
			if index[axis] < boxShape[axis] {
				break
			}
			index[axis] = 0
		}
		if axis < 0 {
			return nil
		}
	}
}

// ExtractBox copies the box at origin with the given extent into a new Array of
// shape (leading dimensions..., extent...).
func (a *Array) ExtractBox(origin, extent []int) (*Array, error) {
	if err := a.checkBox(origin, extent); err != nil {
		return nil, err
	}
	lead := len(a.shape) - len(origin)
	shape := append(append([]int{}, a.shape[:lead]...), extent...)
	out := New(shape...)
	err := a.BoxRuns(origin, extent, func(outer, inner, n int) {
		copy(out.data[inner:inner+n], a.data[outer:outer+n])
	})
	return out, err
}

// CopyBox writes src into a at origin. src must have a's leading dimensions
// followed by the box extent.
func (a *Array) CopyBox(origin []int, src *Array) error {
	lead := len(a.shape) - len(origin)
	if lead < 0 || src.Rank() != a.Rank() {
		return errors.Errorf("ndarray: cannot place %v into %v at %v", src.shape, a.shape, origin)
	}
	for axis := 0; axis < lead; axis++ {
		if src.shape[axis] != a.shape[axis] {
			return errors.Errorf("ndarray: leading axis %d of %v does not match %v", axis, src.shape, a.shape)
		}
	}
	return a.BoxRuns(origin, src.shape[lead:], func(outer, inner, n int) {
		copy(a.data[outer:outer+n], src.data[inner:inner+n])
	})
}

func (a *Array) checkBox(origin, extent []int) error {
	if len(origin) != len(extent) {
		return errors.Errorf("ndarray: box origin %v and extent %v differ in rank", origin, extent)
	}
	if len(origin) == 0 || len(origin) > len(a.shape) {
		return errors.Errorf("ndarray: box rank %d invalid for array of rank %d", len(origin), len(a.shape))
	}
	lead := len(a.shape) - len(origin)
	for i := range origin {
		dim := a.shape[lead+i]
		if origin[i] < 0 || extent[i] <= 0 || origin[i]+extent[i] > dim {
			return errors.Errorf("ndarray: box origin %v extent %v outside shape %v", origin, extent, a.shape)
		}
	}
	return nil
}
