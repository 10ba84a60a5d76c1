package quilt

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volquilt/pkg/geometry"
	"volquilt/pkg/ndarray"
)

// randomArray returns an array filled with values in [1, 2), deterministic per seed.
func randomArray(seed uint64, shape ...int) *ndarray.Array {
	rng := rand.New(rand.NewPCG(seed, 42))
	a := ndarray.New(shape...)
	for i := range a.Data() {
		a.Data()[i] = 1 + rng.Float64()
	}
	return a
}

func mustSpec(t testing.TB, p Params) *Spec {
	t.Helper()
	s, err := NewSpec(p)
	require.NoError(t, err)
	return s
}

func TestTileCoordsRowMajor(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{10, 8},
		Window:       []int{4, 4},
		Step:         []int{3, 4},
		Border:       []int{1, 1},
		BorderWeight: 0.2,
	})
	want := []TileCoord{
		{0, 0}, {0, 4},
		{3, 0}, {3, 4},
		{6, 0}, {6, 4},
	}
	assert.Equal(t, want, s.TileCoords())
	assert.Equal(t, 6, s.NumTiles())
	assert.Equal(t, []int{4, 4}, s.Extent())
	assert.Equal(t, 2, s.Rank())

	i, ok := s.Index(TileCoord{3, 4})
	require.True(t, ok)
	assert.Equal(t, 3, i)
	_, ok = s.Index(TileCoord{1, 1})
	assert.False(t, ok)
}

func TestWeightMaskIsOuterProduct(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{10, 12},
		Window:       []int{4, 5},
		Step:         []int{2, 2},
		Border:       []int{1, 2},
		BorderWeight: 0.2,
	})
	mask := s.WeightMask()
	require.Equal(t, []int{4, 5}, mask.Shape())
	py, px := s.Plan(0).Profile(), s.Plan(1).Profile()
	for y := range py {
		for x := range px {
			v := mask.At(y, x)
			assert.InDelta(t, py[y]*px[x], v, 1e-15)
			assert.Greater(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	// Callers get a copy.
	mask.Set(-1, 0, 0)
	assert.InDelta(t, 0.04, s.WeightMask().At(0, 0), 1e-15)
}

func TestNewSpecErrors(t *testing.T) {
	base := Params{
		SpatialShape: []int{16, 16},
		Window:       []int{8, 8},
		Step:         []int{4, 4},
		Border:       []int{2, 2},
		BorderWeight: 0.5,
	}
	tests := []struct {
		name   string
		modify func(p *Params)
		kind   error
		axis   int
	}{
		{"window arity", func(p *Params) { p.Window = []int{8} }, geometry.ErrInvalidDimension, -1},
		{"border arity", func(p *Params) { p.Border = []int{2, 2, 2} }, geometry.ErrInvalidDimension, -1},
		{"no axes", func(p *Params) { *p = Params{} }, geometry.ErrInvalidDimension, -1},
		{"zero step", func(p *Params) { p.Step = []int{4, 0} }, geometry.ErrInvalidDimension, 1},
		{"border weight", func(p *Params) { p.BorderWeight = 2 }, geometry.ErrInvalidBorderWeight, 0},
		{"border too wide", func(p *Params) { p.Border = []int{2, 4} }, geometry.ErrBorderTooWide, 1},
		{"window exceeds", func(p *Params) { p.Window = []int{20, 8} }, geometry.ErrWindowExceedsLength, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.modify(&p)
			s, err := NewSpec(p)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.kind)
			var ce *geometry.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.axis, ce.Axis)
		})
	}
}

func TestRoundTripExactNonOverlapping(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{8, 8},
		Window:       []int{4, 4},
		Step:         []int{4, 4},
		Border:       []int{0, 0},
		BorderWeight: 1,
	})
	a := randomArray(1, 1, 1, 8, 8)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)
	require.Len(t, tiles, 4)

	rec, err := s.Stitch(tiles)
	require.NoError(t, err)
	assert.True(t, rec.Array.Equal(a), "non-overlapping stitch must be exact")
	for _, w := range rec.WeightTotal.Data() {
		assert.Equal(t, 1.0, w)
	}
	assert.True(t, rec.Coverage.Complete())
	assert.Equal(t, 64, rec.Coverage.Cells)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		p     Params
	}{
		{"2d overlap", []int{2, 3, 37, 29}, Params{
			Window: []int{8, 6}, Step: []int{5, 4}, Border: []int{2, 1}, BorderWeight: 0.1}},
		{"2d step not dividing", []int{1, 1, 10, 10}, Params{
			Window: []int{4, 4}, Step: []int{3, 3}, Border: []int{1, 1}, BorderWeight: 0.2}},
		{"2d step equal to window", []int{1, 2, 20, 17}, Params{
			Window: []int{6, 5}, Step: []int{6, 5}, Border: []int{1, 1}, BorderWeight: 0.5}},
		{"3d overlap", []int{1, 2, 11, 13, 9}, Params{
			Window: []int{5, 6, 4}, Step: []int{3, 4, 2}, Border: []int{1, 2, 1}, BorderWeight: 0.3}},
		{"3d single tile axis", []int{2, 1, 4, 12, 12}, Params{
			Window: []int{4, 5, 5}, Step: []int{4, 3, 3}, Border: []int{1, 1, 2}, BorderWeight: 0.05}},
		{"truncated axis", []int{1, 1, 3, 14}, Params{
			Window: []int{8, 8}, Step: []int{4, 4}, Border: []int{2, 2}, BorderWeight: 0.5, AllowTruncation: true}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			p.SpatialShape = tt.shape[2:]
			s := mustSpec(t, p)
			a := randomArray(uint64(i), tt.shape...)
			orig := a.Clone()

			tiles, err := s.Unstitch(a)
			require.NoError(t, err)
			require.Len(t, tiles, s.NumTiles())
			assert.True(t, a.Equal(orig), "unstitch must not modify its input")

			rec, err := s.Stitch(tiles)
			require.NoError(t, err)
			assert.Equal(t, a.Shape(), rec.Array.Shape())
			assert.True(t, rec.Array.EqualApprox(a, 1e-9))
			assert.True(t, rec.Coverage.Complete())
			for _, w := range rec.WeightTotal.Data() {
				require.Greater(t, w, 0.0)
			}
		})
	}
}

func TestUnstitchTileContents(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{6, 7},
		Window:       []int{3, 4},
		Step:         []int{2, 3},
		Border:       []int{1, 1},
		BorderWeight: 0.5,
	})
	a := randomArray(7, 2, 2, 6, 7)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)
	for i, tile := range tiles {
		assert.Equal(t, s.TileCoords()[i], tile.Coord)
		require.Equal(t, []int{2, 2, 3, 4}, tile.Data.Shape())
		for n := 0; n < 2; n++ {
			for c := 0; c < 2; c++ {
				for y := 0; y < 3; y++ {
					for x := 0; x < 4; x++ {
						assert.Equal(t, a.At(n, c, tile.Coord[0]+y, tile.Coord[1]+x), tile.Data.At(n, c, y, x))
					}
				}
			}
		}
	}
	// Tiles are copies.
	tiles[0].Data.Set(-5, 0, 0, 0, 0)
	assert.NotEqual(t, -5.0, a.At(0, 0, 0, 0))
}

func TestUnstitchShapeMismatch(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{8, 8},
		Window:       []int{4, 4},
		Step:         []int{2, 2},
		Border:       []int{1, 1},
		BorderWeight: 0.5,
	})
	for _, shape := range [][]int{{1, 1, 8, 9}, {1, 8, 8}, {1, 1, 1, 8, 8}} {
		_, err := s.Unstitch(ndarray.New(shape...))
		require.Error(t, err, "shape %v", shape)
		assert.ErrorIs(t, err, ErrShapeMismatch)
		var sm *ShapeMismatchError
		require.True(t, errors.As(err, &sm))
		assert.Equal(t, shape, sm.Got)
	}
	_, err := s.Unstitch(nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestUnstitchParallelMatchesSerial(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{30, 25},
		Window:       []int{8, 8},
		Step:         []int{5, 6},
		Border:       []int{2, 2},
		BorderWeight: 0.2,
	})
	a := randomArray(3, 1, 2, 30, 25)
	serial, err := s.Unstitch(a)
	require.NoError(t, err)
	for _, workers := range []int{0, 1, 3, 100} {
		parallel, err := s.UnstitchParallel(a, workers)
		require.NoError(t, err)
		require.Len(t, parallel, len(serial))
		for i := range serial {
			assert.Equal(t, serial[i].Coord, parallel[i].Coord)
			assert.True(t, serial[i].Data.Equal(parallel[i].Data))
		}
	}
	_, err = s.UnstitchParallel(ndarray.New(1, 1, 5, 5), 4)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestUnstitchPair(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{12, 10},
		Window:       []int{5, 5},
		Step:         []int{4, 3},
		Border:       []int{1, 1},
		BorderWeight: 0.3,
	})
	x := randomArray(4, 2, 3, 12, 10)
	y := randomArray(5, 2, 1, 12, 10)
	xs, ys, err := s.UnstitchPair(x, y)
	require.NoError(t, err)
	require.Len(t, xs, s.NumTiles())
	require.Len(t, ys, len(xs))
	for i := range xs {
		assert.Equal(t, xs[i].Coord, ys[i].Coord)
		assert.Equal(t, []int{2, 3, 5, 5}, xs[i].Data.Shape())
		assert.Equal(t, []int{2, 1, 5, 5}, ys[i].Data.Shape())
	}

	_, _, err = s.UnstitchPair(x, randomArray(6, 1, 1, 12, 10))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, _, err = s.UnstitchPair(x, randomArray(6, 2, 1, 12, 11))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStitchOrderIndependent(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{23, 19},
		Window:       []int{7, 6},
		Step:         []int{4, 4},
		Border:       []int{2, 1},
		BorderWeight: 0.1,
	})
	a := randomArray(8, 1, 2, 23, 19)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)
	want, err := s.Stitch(tiles)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(9, 9))
	for range 5 {
		shuffled := append([]Tile{}, tiles...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := s.Stitch(shuffled)
		require.NoError(t, err)
		assert.True(t, got.Array.EqualApprox(want.Array, 1e-12))
		assert.True(t, got.WeightTotal.EqualApprox(want.WeightTotal, 1e-12))
	}
}

func TestStitchPartitionedMatchesStitch(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{9, 17, 15},
		Window:       []int{4, 6, 6},
		Step:         []int{3, 4, 5},
		Border:       []int{1, 2, 1},
		BorderWeight: 0.25,
	})
	a := randomArray(10, 1, 1, 9, 17, 15)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)
	want, err := s.Stitch(tiles)
	require.NoError(t, err)
	for _, workers := range []int{1, 2, 5, len(tiles), len(tiles) + 7} {
		got, err := s.StitchPartitioned(tiles, workers)
		require.NoError(t, err)
		assert.True(t, got.Array.EqualApprox(want.Array, 1e-12), "workers=%d", workers)
		assert.True(t, got.WeightTotal.EqualApprox(want.WeightTotal, 1e-12), "workers=%d", workers)
		assert.True(t, got.Array.EqualApprox(a, 1e-9))
	}

	bad := append([]Tile{}, tiles...)
	bad[len(bad)-1] = Tile{Coord: TileCoord{1, 1, 1}, Data: tiles[0].Data}
	_, err = s.StitchPartitioned(bad, 4)
	assert.ErrorIs(t, err, ErrUnknownTileCoord)
}

func TestStitchChangedChannels(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{10, 10},
		Window:       []int{4, 4},
		Step:         []int{3, 3},
		Border:       []int{1, 1},
		BorderWeight: 0.2,
	})
	a := randomArray(11, 1, 3, 10, 10)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)

	// Replace every tile by its channel sum, as a model with one output channel would.
	for i, tile := range tiles {
		out := ndarray.New(1, 1, 4, 4)
		for c := 0; c < 3; c++ {
			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					out.Set(out.At(0, 0, y, x)+tile.Data.At(0, c, y, x), 0, 0, y, x)
				}
			}
		}
		tiles[i].Data = out
	}
	rec, err := s.Stitch(tiles)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 10, 10}, rec.Array.Shape())
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := a.At(0, 0, y, x) + a.At(0, 1, y, x) + a.At(0, 2, y, x)
			assert.InEpsilon(t, want, rec.Array.At(0, 0, y, x), 1e-9)
		}
	}
}

func TestStitchErrors(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{8, 8},
		Window:       []int{4, 4},
		Step:         []int{2, 2},
		Border:       []int{1, 1},
		BorderWeight: 0.5,
	})
	tiles, err := s.Unstitch(randomArray(12, 1, 2, 8, 8))
	require.NoError(t, err)

	_, err = s.Stitch(nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	unknown := append([]Tile{}, tiles...)
	unknown[2] = Tile{Coord: TileCoord{1, 0}, Data: tiles[2].Data}
	_, err = s.Stitch(unknown)
	require.ErrorIs(t, err, ErrUnknownTileCoord)
	var uc *UnknownTileCoordError
	require.True(t, errors.As(err, &uc))
	assert.Equal(t, TileCoord{1, 0}, uc.Coord)

	wrongExtent := append([]Tile{}, tiles...)
	wrongExtent[1] = Tile{Coord: tiles[1].Coord, Data: ndarray.New(1, 2, 4, 3)}
	_, err = s.Stitch(wrongExtent)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	mixedChannels := append([]Tile{}, tiles...)
	mixedChannels[3] = Tile{Coord: tiles[3].Coord, Data: ndarray.New(1, 1, 4, 4)}
	_, err = s.Stitch(mixedChannels)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	noData := append([]Tile{}, tiles...)
	noData[0].Data = nil
	_, err = s.Stitch(noData)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStitchDuplicatesAccumulate(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{8, 8},
		Window:       []int{4, 4},
		Step:         []int{4, 4},
		Border:       []int{0, 0},
		BorderWeight: 1,
	})
	a := randomArray(13, 1, 1, 8, 8)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)
	rec, err := s.Stitch(append(tiles, tiles[0]))
	require.NoError(t, err)
	assert.True(t, rec.Array.EqualApprox(a, 1e-12))
	assert.Equal(t, 2.0, rec.WeightTotal.At(0, 0, 0, 0))
	assert.Equal(t, 1.0, rec.WeightTotal.At(0, 0, 7, 7))
}

func TestStitchPartialCoverage(t *testing.T) {
	s := mustSpec(t, Params{
		SpatialShape: []int{8, 8},
		Window:       []int{4, 4},
		Step:         []int{4, 4},
		Border:       []int{1, 1},
		BorderWeight: 0.5,
	})
	a := randomArray(14, 2, 1, 8, 8)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)

	rec, err := s.Stitch(tiles[:1])
	require.NoError(t, err)
	assert.False(t, rec.Coverage.Complete())
	assert.Equal(t, 48, rec.Coverage.Uncovered)
	assert.Equal(t, 64, rec.Coverage.Cells)
	for n := 0; n < 2; n++ {
		assert.Equal(t, 0.0, rec.Array.At(n, 0, 7, 7))
		assert.Equal(t, 0.0, rec.WeightTotal.At(n, 0, 7, 7))
		assert.InEpsilon(t, a.At(n, 0, 1, 2), rec.Array.At(n, 0, 1, 2), 1e-12)
	}
}

func TestZeroBorderWeightLeavesHoles(t *testing.T) {
	// With a zero border weight and no overlap, the outermost ring of every
	// tile gets no weight at all. Those holes are reported, not divided.
	s := mustSpec(t, Params{
		SpatialShape: []int{8},
		Window:       []int{4},
		Step:         []int{4},
		Border:       []int{1},
		BorderWeight: 0,
	})
	a := randomArray(15, 1, 1, 8)
	tiles, err := s.Unstitch(a)
	require.NoError(t, err)
	rec, err := s.Stitch(tiles)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Coverage.Uncovered)
	for _, v := range rec.Array.Data() {
		assert.False(t, math.IsNaN(v), "NaN in reconstruction")
	}
}

func BenchmarkStitch3D(b *testing.B) {
	s := mustSpec(b, Params{
		SpatialShape: []int{64, 64, 64},
		Window:       []int{16, 16, 16},
		Step:         []int{12, 12, 12},
		Border:       []int{2, 2, 2},
		BorderWeight: 0.1,
	})
	tiles, err := s.Unstitch(randomArray(16, 1, 1, 64, 64, 64))
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Stitch(tiles); err != nil {
			b.Fatal(err)
		}
	}
}
