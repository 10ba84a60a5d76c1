package quilt

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch matches every *ShapeMismatchError.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnknownTileCoord matches every *UnknownTileCoordError.
	ErrUnknownTileCoord = errors.New("unknown tile coordinate")
)

// ShapeMismatchError reports an array or tile whose shape disagrees with the
// Spec it was given to. Nothing is cropped or padded to make it fit.
type ShapeMismatchError struct {
	Op     string
	Want   []int
	Got    []int
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	msg := fmt.Sprintf("quilt: %s: shape mismatch: want %v, got %v", e.Op, e.Want, e.Got)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// UnknownTileCoordError reports a tile whose coordinate is not part of the
// Spec's schedule.
type UnknownTileCoordError struct {
	Coord TileCoord
}

func (e *UnknownTileCoordError) Error() string {
	return fmt.Sprintf("quilt: stitch: tile coordinate %v is not in the schedule", e.Coord)
}

func (e *UnknownTileCoordError) Is(target error) bool { return target == ErrUnknownTileCoord }
