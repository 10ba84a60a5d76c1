// Package reconstruction runs the tile pipeline end to end: it loads or
// receives an array, cuts it into overlapping tiles, applies a per-tile
// transform on a pool of goroutines, blends the tiles back together and
// measures how far the result is from the input.
package reconstruction

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"volquilt/pkg/config"
	"volquilt/pkg/ndarray"
	"volquilt/pkg/quilt"
	"volquilt/pkg/tilefunc"
	"volquilt/pkg/visualization"
)

// Params holds the input and processing configuration of one run.
type Params struct {
	// InputDir is a directory of slice images, loaded with LoadSlices.
	// Ignored when Source is set.
	InputDir string

	// Source is the array to process, shaped (N, C, spatial...).
	Source *ndarray.Array

	// Config holds tiling and processing settings. DefaultConfig is used when nil.
	Config *config.Config

	// Transform overrides the transform named in Config.
	Transform tilefunc.Func

	// Progress receives a progress bar while tiles are transformed. Nothing is
	// drawn when nil.
	Progress io.Writer
}

// Reconstructor splits an array into tiles, transforms them in parallel and
// stitches them back together.
type Reconstructor struct {
	params *Params
	cfg    *config.Config

	source *ndarray.Array
	spec   *quilt.Spec
	result *quilt.Reconstruction

	// metrics compare result with source; zero when the channel count changed
	metrics ValidationMetrics
}

// NewReconstructor creates a new reconstructor instance with the provided parameters.
func NewReconstructor(params *Params) *Reconstructor {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Reconstructor{params: params, cfg: cfg}
}

// Process runs the complete pipeline
func (r *Reconstructor) Process() error {
	klog.V(1).Info("Step 1: Loading input")
	if err := r.loadSource(); err != nil {
		return err
	}

	transform := r.params.Transform
	if transform == nil {
		var err error
		if transform, err = r.cfg.TransformFunc(); err != nil {
			return err
		}
	}

	klog.V(1).Info("Step 2: Planning tiles")
	params, err := r.cfg.QuiltParams(r.source.SpatialShape())
	if err != nil {
		return err
	}
	if r.spec, err = quilt.NewSpec(params); err != nil {
		return err
	}

	workers := max(1, r.cfg.Processing.NumWorkers)
	klog.V(1).Infof("Step 3: Unstitching %d tiles on %d workers", r.spec.NumTiles(), workers)
	tiles, err := r.spec.UnstitchParallel(r.source, workers)
	if err != nil {
		return err
	}

	klog.V(1).Info("Step 4: Transforming tiles")
	processed, err := r.processTilesInParallel(tiles, transform, workers)
	if err != nil {
		return err
	}

	klog.V(1).Infof("Step 5: Stitching (%s)", r.cfg.Processing.StitchStrategy)
	if r.cfg.Processing.StitchStrategy == config.StitchPartitioned {
		r.result, err = r.spec.StitchPartitioned(processed, workers)
	} else {
		r.result, err = r.spec.Stitch(processed)
	}
	if err != nil {
		return err
	}
	if cov := r.result.Coverage; !cov.Complete() {
		klog.Warningf("%d of %d positions received no tile weight and were set to 0", cov.Uncovered, cov.Cells)
	}

	klog.V(1).Info("Step 6: Calculating validation metrics")
	r.calculateValidationMetrics()

	if r.cfg.Output.SaveCoverage {
		if err := r.saveCoverage(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconstructor) loadSource() error {
	switch {
	case r.params.Source != nil:
		r.source = r.params.Source
	case r.params.InputDir != "":
		src, err := LoadSlices(r.params.InputDir)
		if err != nil {
			return errors.WithMessage(err, "failed to load slices")
		}
		r.source = src
	default:
		return errors.New("no input: set Params.Source or Params.InputDir")
	}
	if r.source.Rank() < 3 {
		return errors.Errorf("input %v needs batch, channel and at least one spatial axis", r.source)
	}
	return nil
}

// processTilesInParallel applies transform to every tile on a pool of
// workers. The returned tiles keep the order of the input.
func (r *Reconstructor) processTilesInParallel(tiles []quilt.Tile, transform tilefunc.Func, workers int) ([]quilt.Tile, error) {
	type processingResult struct {
		index int
		data  *ndarray.Array
		err   error
	}

	jobs := make(chan int)
	resultChan := make(chan processingResult, len(tiles))
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(tiles)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				data, err := transform(tiles[i].Data)
				resultChan <- processingResult{index: i, data: data, err: err}
			}
		}()
	}
	go func() {
		for i := range tiles {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(resultChan)
	}()

	var bar *progressbar.ProgressBar
	if r.params.Progress != nil {
		bar = progressbar.NewOptions(len(tiles),
			progressbar.OptionSetWriter(r.params.Progress),
			progressbar.OptionSetDescription("Transforming tiles"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("tiles"),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
		)
	}

	out := make([]quilt.Tile, len(tiles))
	var firstErr error
	for res := range resultChan {
		if bar != nil {
			_ = bar.Add(1)
		}
		if res.err != nil {
			if firstErr == nil {
				firstErr = errors.WithMessagef(res.err, "tile %v", tiles[res.index].Coord)
			}
			continue
		}
		out[res.index] = quilt.Tile{Coord: tiles[res.index].Coord, Data: res.data}
		klog.V(3).Infof("tile %v: %v -> %v", tiles[res.index].Coord, tiles[res.index].Data, res.data)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (r *Reconstructor) calculateValidationMetrics() {
	if !r.source.SameShape(r.result.Array) {
		klog.V(1).Infof("Skipping metrics: output %v differs in shape from input %v", r.result.Array, r.source)
		r.metrics = ValidationMetrics{}
		return
	}
	r.metrics = CompareArrays(r.source.Data(), r.result.Array.Data())
}

// saveCoverage writes the weight totals of the first batch and channel as
// images, one per z slice.
func (r *Reconstructor) saveCoverage() error {
	viewer, err := visualization.NewViewer(r.result.WeightTotal, 0, 0)
	if err != nil {
		klog.Warningf("Not saving coverage: %v", err)
		return nil
	}
	dir := r.cfg.Output.CoverageDir
	n, err := viewer.SaveSliceSequence("z", dir)
	if err != nil {
		return errors.Wrapf(err, "saving coverage to %q", dir)
	}
	klog.V(1).Infof("Saved %d coverage slices to %s", n, filepath.Clean(dir))
	return nil
}

// GetMetrics returns the metrics of the last Process call.
func (r *Reconstructor) GetMetrics() ValidationMetrics {
	return r.metrics
}

// Result returns the stitched reconstruction, or nil before Process succeeds.
func (r *Reconstructor) Result() *quilt.Reconstruction {
	return r.result
}

// Spec returns the tiling schedule used by the last Process call.
func (r *Reconstructor) Spec() *quilt.Spec {
	return r.spec
}

// Source returns the processed input array.
func (r *Reconstructor) Source() *ndarray.Array {
	return r.source
}

// Summary is a one-line description of the last run.
func (r *Reconstructor) Summary() string {
	if r.result == nil {
		return "not processed"
	}
	return fmt.Sprintf("%v -> %d tiles of %v -> %v, %d/%d positions covered",
		r.source, r.spec.NumTiles(), r.spec.Extent(), r.result.Array,
		r.result.Coverage.Cells-r.result.Coverage.Uncovered, r.result.Coverage.Cells)
}
