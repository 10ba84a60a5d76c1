// Package ndarray provides the dense N-dimensional buffer that volquilt tiles
// and reconstructs.
//
// An Array stores float64 values in row-major order, the same flat layout the
// rest of the module uses for volumes. By convention axis 0 is the batch axis
// (N), axis 1 is the channel axis (C) and every following axis is spatial, so a
// 2-D image is (N, C, H, W) and a 3-D volume is (N, C, D, H, W).
package ndarray

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/floats"
)

// Array is a dense, row-major array of float64 values.
type Array struct {
	shape   []int
	strides []int
	data    []float64
}

// New returns a zero-filled Array with the given shape.
// It panics if the shape is empty or any dimension is not positive.
func New(shape ...int) *Array {
	if err := checkShape(shape); err != nil {
		panic(err)
	}
	return &Array{
		shape:   slices.Clone(shape),
		strides: computeStrides(shape),
		data:    make([]float64, numElements(shape)),
	}
}

// FromData wraps data as an Array of the given shape. The slice is used
// directly, not copied.
func FromData(data []float64, shape ...int) (*Array, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	}
	if n := numElements(shape); n != len(data) {
		return nil, errors.Errorf("ndarray: shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Array{
		shape:   slices.Clone(shape),
		strides: computeStrides(shape),
		data:    data,
	}, nil
}

// FromSlice converts values of any integer or float type to an Array.
func FromSlice[T constraints.Integer | constraints.Float](values []T, shape ...int) (*Array, error) {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return FromData(data, shape...)
}

// FromFloat16 converts half-precision values, as produced by many inference
// runtimes, to an Array.
func FromFloat16(values []float16.Float16, shape ...int) (*Array, error) {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v.Float32())
	}
	return FromData(data, shape...)
}

// Shape returns a copy of the array's dimensions.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Strides returns a copy of the row-major strides, in elements.
func (a *Array) Strides() []int { return slices.Clone(a.strides) }

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.shape) }

// Size returns the total number of elements.
func (a *Array) Size() int { return len(a.data) }

// Dim returns the size of one axis.
func (a *Array) Dim(axis int) int { return a.shape[axis] }

// Data returns the underlying flat buffer. Writes through it modify the array.
func (a *Array) Data() []float64 { return a.data }

// Batch returns the size of axis 0.
func (a *Array) Batch() int { return a.shape[0] }

// Channels returns the size of axis 1, or 1 for rank-1 arrays.
func (a *Array) Channels() int {
	if len(a.shape) < 2 {
		return 1
	}
	return a.shape[1]
}

// SpatialShape returns the dimensions after the batch and channel axes.
func (a *Array) SpatialShape() []int {
	if len(a.shape) <= 2 {
		return nil
	}
	return slices.Clone(a.shape[2:])
}

// At returns the element at the given index.
func (a *Array) At(index ...int) float64 {
	return a.data[a.offset(index)]
}

// Set stores v at the given index.
func (a *Array) Set(v float64, index ...int) {
	a.data[a.offset(index)] = v
}

func (a *Array) offset(index []int) int {
	if len(index) != len(a.shape) {
		panic(errors.Errorf("ndarray: index %v has rank %d, array has rank %d", index, len(index), len(a.shape)))
	}
	off := 0
	for axis, i := range index {
		if i < 0 || i >= a.shape[axis] {
			panic(errors.Errorf("ndarray: index %v out of range for shape %v", index, a.shape))
		}
		off += i * a.strides[axis]
	}
	return off
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		shape:   slices.Clone(a.shape),
		strides: slices.Clone(a.strides),
		data:    slices.Clone(a.data),
	}
}

// SameShape reports whether a and b have identical dimensions.
func (a *Array) SameShape(b *Array) bool {
	return slices.Equal(a.shape, b.shape)
}

// Equal reports whether a and b have the same shape and exactly the same values.
func (a *Array) Equal(b *Array) bool {
	return a.SameShape(b) && slices.Equal(a.data, b.data)
}

// EqualApprox reports whether a and b have the same shape and every pair of
// values is within tol, absolutely or relatively.
func (a *Array) EqualApprox(b *Array, tol float64) bool {
	return a.SameShape(b) && floats.EqualApprox(a.data, b.data, tol)
}

// Add adds b into a element-wise. Both arrays must have the same shape.
func (a *Array) Add(b *Array) error {
	if !a.SameShape(b) {
		return errors.Errorf("ndarray: cannot add shape %v into %v", b.shape, a.shape)
	}
	floats.Add(a.data, b.data)
	return nil
}

// Float32s returns the values converted to float32.
func (a *Array) Float32s() []float32 {
	out := make([]float32, len(a.data))
	for i, v := range a.data {
		out[i] = float32(v)
	}
	return out
}

// Float16s returns the values converted to half precision.
func (a *Array) Float16s() []float16.Float16 {
	out := make([]float16.Float16, len(a.data))
	for i, v := range a.data {
		out[i] = float16.Fromfloat32(float32(v))
	}
	return out
}

func (a *Array) String() string {
	return fmt.Sprintf("Array%v", a.shape)
}

func checkShape(shape []int) error {
	if len(shape) == 0 {
		return errors.New("ndarray: shape must have at least one axis")
	}
	for axis, d := range shape {
		if d <= 0 {
			return errors.Errorf("ndarray: invalid dimension %d on axis %d of shape %v", d, axis, shape)
		}
	}
	return nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// computeStrides returns row-major strides: the last axis is contiguous.
func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for axis := len(shape) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= shape[axis]
	}
	return strides
}
