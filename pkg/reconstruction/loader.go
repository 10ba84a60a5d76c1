package reconstruction

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"volquilt/internal/models"
	"volquilt/pkg/ndarray"
)

// LoadSlices reads every JPEG and PNG image in dir, orders them by the number
// in their filename and stacks them into a single-channel array: (1, 1, D, H, W)
// for several slices, (1, 1, H, W) for one. Pixel values are gray levels
// scaled to [0, 1].
func LoadSlices(dir string) (*ndarray.Array, error) {
	slices, err := readSlices(dir)
	if err != nil {
		return nil, err
	}
	width, height := slices[0].Width(), slices[0].Height()
	plane := width * height
	data := make([]float64, plane*len(slices))
	for i, s := range slices {
		if s.Width() != width || s.Height() != height {
			return nil, errors.Errorf("slice %s is %dx%d, first slice %s is %dx%d",
				s.Filename, s.Width(), s.Height(), slices[0].Filename, width, height)
		}
		imageToFloat(s.Image, data[i*plane:(i+1)*plane])
	}
	klog.V(1).Infof("Loaded %d slices with dimensions %dx%d from %s", len(slices), width, height, dir)

	if len(slices) == 1 {
		return ndarray.FromData(data, 1, 1, height, width)
	}
	return ndarray.FromData(data, 1, 1, len(slices), height, width)
}

// readSlices decodes the images of dir in slice order.
func readSlices(dir string) ([]models.Slice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading input directory %q", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		default:
			klog.V(2).Infof("Skipping %s: not a slice image", e.Name())
		}
	}
	if len(names) == 0 {
		return nil, errors.Errorf("no JPEG or PNG images found in %q", dir)
	}

	// Order by the number in the filename so that slice_10 follows slice_9.
	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	slices := make([]models.Slice, 0, len(names))
	for _, name := range names {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		slices = append(slices, models.Slice{Image: img, Index: extractNumber(name), Filename: name})
	}
	return slices, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	num, err := strconv.Atoi(digits.String())
	if err != nil {
		return math.MaxInt
	}
	return num
}

// loadImage loads an image from a file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening slice %q", path)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding slice %q", path)
	}
	return img, nil
}

// imageToFloat writes the gray level of img, in [0, 1], into dst in row-major
// order.
func imageToFloat(img image.Image, dst []float64) {
	bounds := img.Bounds()
	width := bounds.Dx()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R 601 luma, same weights as color.GrayModel.
			lum := (19595*r + 38470*g + 7471*b + 1<<15) >> 16
			dst[(y-bounds.Min.Y)*width+(x-bounds.Min.X)] = float64(lum) / 65535.0
		}
	}
}

// SyntheticVolume returns a smooth deterministic test array of the given shape
// (N, C, spatial...), with values in [0, 1].
func SyntheticVolume(shape ...int) (*ndarray.Array, error) {
	arr, err := ndarray.FromData(make([]float64, product(shape)), shape...)
	if err != nil {
		return nil, err
	}
	data := arr.Data()
	strides := arr.Strides()
	for i := range data {
		v := 0.0
		rem := i
		for axis, stride := range strides {
			idx := rem / stride
			rem %= stride
			// Each axis contributes one slow wave with its own phase.
			v += math.Sin(0.37*float64(idx)*float64(axis+1) + float64(axis))
		}
		data[i] = 0.5 + 0.5*v/float64(len(strides))
	}
	return arr, nil
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}
