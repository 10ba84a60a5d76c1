package quilt

import (
	"sync"

	"k8s.io/klog/v2"

	"volquilt/pkg/ndarray"
)

// Unstitch cuts arr, of shape (N, C, spatial...), into one independent tile per
// position of TileCoords, in that order. arr is not modified.
func (s *Spec) Unstitch(arr *ndarray.Array) ([]Tile, error) {
	if err := s.checkArray("unstitch", arr); err != nil {
		return nil, err
	}
	tiles := make([]Tile, len(s.coords))
	for i := range s.coords {
		tile, err := s.extract(arr, i)
		if err != nil {
			return nil, err
		}
		tiles[i] = tile
	}
	klog.V(3).Infof("quilt: unstitched %v into %d tiles", arr, len(tiles))
	return tiles, nil
}

// UnstitchParallel returns the same tiles as Unstitch, extracting them on
// up to workers goroutines. Every tile is written to its own buffer, so no
// locking is involved.
func (s *Spec) UnstitchParallel(arr *ndarray.Array, workers int) ([]Tile, error) {
	if workers <= 1 || len(s.coords) < 2 {
		return s.Unstitch(arr)
	}
	if err := s.checkArray("unstitch", arr); err != nil {
		return nil, err
	}
	workers = min(workers, len(s.coords))

	tiles := make([]Tile, len(s.coords))
	errs := make([]error, len(s.coords))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				tiles[i], errs[i] = s.extract(arr, i)
			}
		}()
	}
	for i := range s.coords {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	klog.V(3).Infof("quilt: unstitched %v into %d tiles on %d workers", arr, len(tiles), workers)
	return tiles, nil
}

// UnstitchPair cuts x and y at identical positions, so that xs[i] and ys[i]
// always share a coordinate. y may have a different channel count from x but
// must have the same batch size and spatial shape.
func (s *Spec) UnstitchPair(x, y *ndarray.Array) (xs, ys []Tile, err error) {
	if err := s.checkArray("unstitch pair", x); err != nil {
		return nil, nil, err
	}
	if err := s.checkArray("unstitch pair", y); err != nil {
		return nil, nil, err
	}
	if x.Batch() != y.Batch() {
		return nil, nil, &ShapeMismatchError{Op: "unstitch pair", Want: x.Shape(), Got: y.Shape(),
			Detail: "batch sizes differ"}
	}
	if xs, err = s.Unstitch(x); err != nil {
		return nil, nil, err
	}
	if ys, err = s.Unstitch(y); err != nil {
		return nil, nil, err
	}
	return xs, ys, nil
}

func (s *Spec) extract(arr *ndarray.Array, i int) (Tile, error) {
	coord := s.coords[i]
	data, err := arr.ExtractBox(coord, s.extent)
	if err != nil {
		return Tile{}, err
	}
	return Tile{Coord: TileCoord(append([]int{}, coord...)), Data: data}, nil
}
