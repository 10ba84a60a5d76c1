package quilt

import (
	"slices"
	"strconv"
	"strings"

	"volquilt/pkg/ndarray"
)

// TileCoord holds the start offset of a tile on each spatial axis.
type TileCoord []int

// Key returns a comparable form of the coordinate, for use as a map key.
func (c TileCoord) Key() string {
	var b strings.Builder
	for i, v := range c {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// Equal reports whether c and o name the same position.
func (c TileCoord) Equal(o TileCoord) bool { return slices.Equal(c, o) }

func (c TileCoord) String() string { return "(" + c.Key() + ")" }

// Tile is one window of an array: Data has shape (N, C, extent...) and was
// taken from the spatial box starting at Coord.
//
// Tiles returned by Unstitch own their data. A per-tile transform may replace
// Data with an array of a different channel count before stitching.
type Tile struct {
	Coord TileCoord
	Data  *ndarray.Array
}
