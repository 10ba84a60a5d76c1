// Package tilefunc provides per-tile transforms to run between unstitching and
// stitching.
//
// A transform receives one tile of shape (N, C, extent...) and returns a new
// array with the same batch size and spatial extent. The channel count may
// change. Transforms must not modify their input and must be safe to call from
// several goroutines at once.
package tilefunc

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"volquilt/pkg/ndarray"
)

// Func transforms one tile.
type Func func(tile *ndarray.Array) (*ndarray.Array, error)

// Names lists the transforms known to ByName.
var Names = []string{"identity", "scale", "channelmean", "median", "lowpass"}

// ByName returns the named transform. scale is used by "scale" and cutoff by
// "lowpass"; both are ignored otherwise.
func ByName(name string, scale, cutoff float64) (Func, error) {
	switch strings.ToLower(name) {
	case "", "identity":
		return Identity(), nil
	case "scale":
		return Scale(scale), nil
	case "channelmean":
		return ChannelMean(), nil
	case "median":
		return Median(), nil
	case "lowpass":
		if cutoff <= 0 || cutoff > 1 {
			return nil, errors.Errorf("lowpass cutoff %g not in (0, 1]", cutoff)
		}
		return LowPass(cutoff), nil
	}
	return nil, errors.Errorf("unknown transform %q (known: %s)", name, strings.Join(Names, ", "))
}

// Identity returns a copy of each tile.
func Identity() Func {
	return func(tile *ndarray.Array) (*ndarray.Array, error) {
		return tile.Clone(), nil
	}
}

// Scale multiplies every value by k.
func Scale(k float64) Func {
	return func(tile *ndarray.Array) (*ndarray.Array, error) {
		out := tile.Clone()
		floats.Scale(k, out.Data())
		return out, nil
	}
}

// ChannelMean averages the channels of each tile into one, turning
// (N, C, ...) into (N, 1, ...).
func ChannelMean() Func {
	return func(tile *ndarray.Array) (*ndarray.Array, error) {
		if tile.Rank() < 3 {
			return nil, errors.Errorf("channelmean: tile %v has no spatial axes", tile)
		}
		shape := tile.Shape()
		n, c := shape[0], shape[1]
		shape[1] = 1
		out := ndarray.New(shape...)
		plane := tile.Size() / (n * c)
		src, dst := tile.Data(), out.Data()
		for b := 0; b < n; b++ {
			acc := dst[b*plane : (b+1)*plane]
			for ch := 0; ch < c; ch++ {
				off := (b*c + ch) * plane
				floats.Add(acc, src[off:off+plane])
			}
			floats.Scale(1/float64(c), acc)
		}
		return out, nil
	}
}

// Median replaces each value by the median of its 3x3 neighbourhood on the
// last two axes, or of its 3-neighbourhood on tiles with one spatial axis.
// Neighbours outside the tile are skipped, so values near tile edges are
// smoothed with less context than interior ones.
func Median() Func {
	return func(tile *ndarray.Array) (*ndarray.Array, error) {
		if tile.Rank() < 3 {
			return nil, errors.Errorf("median: tile %v has no spatial axes", tile)
		}
		shape := tile.Shape()
		width := shape[len(shape)-1]
		height := 1
		if len(shape) >= 4 {
			height = shape[len(shape)-2]
		}
		plane := width * height
		src := tile.Data()
		out := ndarray.New(shape...)
		dst := out.Data()
		window := make([]float64, 0, 9)
		for off := 0; off < len(src); off += plane {
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					window = window[:0]
					for dy := -1; dy <= 1; dy++ {
						for dx := -1; dx <= 1; dx++ {
							yy, xx := y+dy, x+dx
							if yy < 0 || yy >= height || xx < 0 || xx >= width {
								continue
							}
							window = append(window, src[off+yy*width+xx])
						}
					}
					dst[off+y*width+x] = median(window)
				}
			}
		}
		return out, nil
	}
}

// median returns the median of values, sorting them in place.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// LowPass removes high frequencies along the last axis: every row is
// transformed with a real FFT, coefficients above cutoff times the Nyquist
// frequency are zeroed, and the row is transformed back. A cutoff of 1 keeps
// every coefficient.
func LowPass(cutoff float64) Func {
	return func(tile *ndarray.Array) (*ndarray.Array, error) {
		shape := tile.Shape()
		width := shape[len(shape)-1]
		out := tile.Clone()
		if width < 2 {
			return out, nil
		}
		fft := fourier.NewFFT(width)
		coeffs := make([]complex128, width/2+1)
		keep := int(cutoff * float64(width/2))
		data := out.Data()
		for off := 0; off < len(data); off += width {
			row := data[off : off+width]
			fft.Coefficients(coeffs, row)
			for k := keep + 1; k < len(coeffs); k++ {
				coeffs[k] = 0
			}
			fft.Sequence(row, coeffs)
			// gonum's inverse transform is unnormalized.
			floats.Scale(1/float64(width), row)
		}
		return out, nil
	}
}
