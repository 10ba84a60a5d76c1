package models

import (
	"image"
)

// Slice represents a single 2D image of a volume with metadata
type Slice struct {
	// Image is the decoded slice image
	Image image.Image

	// Index is the position of this slice in the sequence, taken from the
	// number in its filename
	Index int

	// Filename is the original filename of the slice
	Filename string
}

// Width returns the slice width in pixels.
func (s Slice) Width() int { return s.Image.Bounds().Dx() }

// Height returns the slice height in pixels.
func (s Slice) Height() int { return s.Image.Bounds().Dy() }
