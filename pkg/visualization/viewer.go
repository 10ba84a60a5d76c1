package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"volquilt/pkg/ndarray"
)

// Viewer renders 2D cuts of one (batch, channel) volume of an array shaped
// (N, C, D, H, W) or (N, C, H, W). Values are mapped linearly from the
// volume's [min, max] range to gray levels.
type Viewer struct {
	// volumeData holds the selected volume in z, y, x order
	volumeData []float64

	// dimensions of the volume; depth is 1 for 2D arrays
	width  int
	height int
	depth  int

	// offset and scale map values to [0, 1]
	offset float64
	scale  float64
}

// NewViewer selects volume (batch, channel) of arr for viewing.
func NewViewer(arr *ndarray.Array, batch, channel int) (*Viewer, error) {
	shape := arr.Shape()
	var depth, height, width int
	switch len(shape) {
	case 4:
		depth, height, width = 1, shape[2], shape[3]
	case 5:
		depth, height, width = shape[2], shape[3], shape[4]
	default:
		return nil, errors.Errorf("viewer needs an (N, C, H, W) or (N, C, D, H, W) array, got %v", arr)
	}
	if batch < 0 || batch >= shape[0] || channel < 0 || channel >= shape[1] {
		return nil, errors.Errorf("volume (%d, %d) out of range for %v", batch, channel, arr)
	}

	size := depth * height * width
	off := (batch*shape[1] + channel) * size
	data := arr.Data()[off : off+size]

	v := &Viewer{volumeData: data, width: width, height: height, depth: depth}
	lo, hi := floats.Min(data), floats.Max(data)
	v.offset = lo
	if hi > lo {
		v.scale = 1 / (hi - lo)
	}
	return v, nil
}

// Dims returns the width, height and depth of the volume.
func (v *Viewer) Dims() (width, height, depth int) {
	return v.width, v.height, v.depth
}

func (v *Viewer) gray(idx int) color.Gray16 {
	n := (v.volumeData[idx] - v.offset) * v.scale
	return color.Gray16{Y: uint16(max(0, min(65535, n*65535)))}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetGray16(z, y, v.gray(z*v.width*v.height+y*v.width+position))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, z, v.gray(z*v.width*v.height+position*v.width+x))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, y, v.gray(position*v.width*v.height+y*v.width+x))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion extracts a 3D subregion from the volume, unnormalized
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) ([]float64, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startX+sizeX > v.width || startY+sizeY > v.height || startZ+sizeZ > v.depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := make([]float64, 0, sizeX*sizeY*sizeZ)
	for z := startZ; z < startZ+sizeZ; z++ {
		for y := startY; y < startY+sizeY; y++ {
			row := z*v.width*v.height + y*v.width
			region = append(region, v.volumeData[row+startX:row+startX+sizeX]...)
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// and returns the number of files written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return maxPos, nil
}
