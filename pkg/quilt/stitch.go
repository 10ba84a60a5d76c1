package quilt

import (
	"fmt"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"

	"volquilt/pkg/ndarray"
)

// Coverage summarizes where a stitch received weight.
type Coverage struct {
	// Cells is the number of spatial positions.
	Cells int
	// Uncovered is the number of spatial positions that received zero total
	// weight. Their reconstructed value is 0.
	Uncovered int
}

// Complete reports whether every spatial position received weight.
func (c Coverage) Complete() bool { return c.Uncovered == 0 }

// Reconstruction is the result of a stitch.
type Reconstruction struct {
	// Array is the weighted average of all tiles, shape (N, C, spatial...),
	// with C taken from the tiles.
	Array *ndarray.Array
	// WeightTotal holds the accumulated weight per element, same shape as Array.
	WeightTotal *ndarray.Array
	Coverage    Coverage
}

// Stitch blends tiles back into a full-size array. Tiles may come in any
// order; each one is placed by its Coord. All tiles must have the same batch
// size, channel count and spatial extent. A coordinate given twice is
// accumulated twice.
//
// Accumulation is sequential. See StitchPartitioned for a parallel version.
func (s *Spec) Stitch(tiles []Tile) (*Reconstruction, error) {
	n, c, err := s.checkTiles(tiles)
	if err != nil {
		return nil, err
	}
	acc := s.newAccumulator(n, c)
	for _, tile := range tiles {
		if err := acc.add(tile); err != nil {
			return nil, err
		}
	}
	return acc.finish(), nil
}

// StitchPartitioned returns the same reconstruction as Stitch, up to
// floating-point rounding, using up to workers goroutines. The tiles are split
// into disjoint contiguous groups; each worker accumulates its group into
// private buffers, and the buffers are summed on the calling goroutine.
func (s *Spec) StitchPartitioned(tiles []Tile, workers int) (*Reconstruction, error) {
	if workers <= 1 || len(tiles) < 2 {
		return s.Stitch(tiles)
	}
	n, c, err := s.checkTiles(tiles)
	if err != nil {
		return nil, err
	}
	workers = min(workers, len(tiles))
	perWorker := (len(tiles) + workers - 1) / workers

	partials := make([]*accumulator, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := min(start+perWorker, len(tiles))
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w int, group []Tile) {
			defer wg.Done()
			acc := s.newAccumulator(n, c)
			for _, tile := range group {
				if err := acc.add(tile); err != nil {
					errs[w] = err
					return
				}
			}
			partials[w] = acc
		}(w, tiles[start:end])
	}
	wg.Wait()

	var total *accumulator
	for w, acc := range partials {
		if errs[w] != nil {
			return nil, errs[w]
		}
		if acc == nil {
			continue
		}
		if total == nil {
			total = acc
			continue
		}
		total.merge(acc)
	}
	klog.V(3).Infof("quilt: stitched %d tiles on %d workers", len(tiles), workers)
	return total.finish(), nil
}

// checkTiles validates every tile before anything is accumulated and returns
// the batch size and channel count of the output.
func (s *Spec) checkTiles(tiles []Tile) (n, c int, err error) {
	if len(tiles) == 0 {
		return 0, 0, &ShapeMismatchError{Op: "stitch", Want: s.extent, Detail: "no tiles to stitch"}
	}
	for i, tile := range tiles {
		if tile.Data == nil {
			return 0, 0, &ShapeMismatchError{Op: "stitch", Want: s.extent,
				Detail: fmt.Sprintf("tile %d at %v has no data", i, tile.Coord)}
		}
		shape := tile.Data.Shape()
		if len(shape) != len(s.extent)+2 || !slices.Equal(shape[2:], s.extent) {
			return 0, 0, &ShapeMismatchError{Op: "stitch", Want: s.extent, Got: shape,
				Detail: fmt.Sprintf("tile %d at %v must be (N, C, extent...)", i, tile.Coord)}
		}
		if i == 0 {
			n, c = shape[0], shape[1]
		} else if shape[0] != n || shape[1] != c {
			return 0, 0, &ShapeMismatchError{Op: "stitch", Want: append([]int{n, c}, s.extent...), Got: shape,
				Detail: fmt.Sprintf("tile %d at %v has a different batch or channel count than tile 0", i, tile.Coord)}
		}
		if _, ok := s.Index(tile.Coord); !ok {
			return 0, 0, &UnknownTileCoordError{Coord: tile.Coord}
		}
	}
	return n, c, nil
}

// accumulator holds the running weighted sum and weight total of one stitch.
type accumulator struct {
	spec   *Spec
	sum    *ndarray.Array
	weight *ndarray.Array
	mask   []float64
	buf    []float64
}

func (s *Spec) newAccumulator(n, c int) *accumulator {
	shape := append([]int{n, c}, s.spatial...)
	return &accumulator{
		spec:   s,
		sum:    ndarray.New(shape...),
		weight: ndarray.New(shape...),
		mask:   s.mask.Data(),
		buf:    make([]float64, s.extent[len(s.extent)-1]),
	}
}

// add accumulates tile*mask into sum and mask into weight over the tile's box.
func (acc *accumulator) add(tile Tile) error {
	src := tile.Data.Data()
	sum := acc.sum.Data()
	weight := acc.weight.Data()
	maskSize := len(acc.mask)
	return acc.sum.BoxRuns(tile.Coord, acc.spec.extent, func(outer, inner, n int) {
		// Tile data is N*C consecutive copies of the mask's layout.
		m := inner % maskSize
		mask := acc.mask[m : m+n]
		buf := acc.buf[:n]
		floats.MulTo(buf, src[inner:inner+n], mask)
		floats.Add(sum[outer:outer+n], buf)
		floats.Add(weight[outer:outer+n], mask)
	})
}

func (acc *accumulator) merge(other *accumulator) {
	floats.Add(acc.sum.Data(), other.sum.Data())
	floats.Add(acc.weight.Data(), other.weight.Data())
}

// finish normalizes the weighted sum in place. Positions without weight are
// set to 0 and counted, never divided.
func (acc *accumulator) finish() *Reconstruction {
	sum := acc.sum.Data()
	weight := acc.weight.Data()
	cells := 1
	for _, d := range acc.spec.spatial {
		cells *= d
	}
	// Weight is identical across batch and channel, so the first
	// (n=0, c=0) block is enough to count spatial positions.
	uncovered := 0
	for i, w := range weight {
		if w == 0 {
			sum[i] = 0
			if i < cells {
				uncovered++
			}
			continue
		}
		sum[i] /= w
	}
	if uncovered > 0 {
		klog.V(1).Infof("quilt: %d of %d positions received no weight", uncovered, cells)
	}
	return &Reconstruction{
		Array:       acc.sum,
		WeightTotal: acc.weight,
		Coverage:    Coverage{Cells: cells, Uncovered: uncovered},
	}
}
