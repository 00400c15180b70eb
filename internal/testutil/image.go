package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// GenerateTexturedImage renders a deterministic mosaic of overlapping
// rectangles in random shades. The result is rich in corners and therefore
// trackable.
func GenerateTexturedImage(width, height int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // G404: deterministic test data
	img := CreateTestImage(width, height, color.RGBA{128, 128, 128, 255})
	n := width * height / 300
	for range n {
		w := 6 + rng.IntN(max(1, width/6))
		h := 6 + rng.IntN(max(1, height/6))
		x := rng.IntN(width) - w/2
		y := rng.IntN(height) - h/2
		shade := uint8(rng.IntN(256))
		c := color.RGBA{shade, uint8(rng.IntN(256)), 255 - shade, 255}
		draw.Draw(img, image.Rect(x, y, x+w, y+h), &image.Uniform{c}, image.Point{}, draw.Src)
	}
	return img
}

// GenerateNoiseImage fills an image with seeded per-pixel gray noise.
func GenerateNoiseImage(width, height int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, ^seed)) //nolint:gosec // G404: deterministic test data
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(rng.IntN(256))
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

// GenerateCheckerboard renders black and white squares of side cell,
// starting with black at the origin.
func GenerateCheckerboard(width, height, cell int) *image.RGBA {
	img := CreateTestImage(width, height, color.White)
	cell = max(cell, 1)
	for y := 0; y < height; y += cell {
		for x := 0; x < width; x += cell {
			if (x/cell+y/cell)%2 == 0 {
				draw.Draw(img, image.Rect(x, y, x+cell, y+cell), image.Black, image.Point{}, draw.Src)
			}
		}
	}
	return img
}

// CreateTestImage creates a simple test image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// CreateSquareImage draws a filled square of side size at (x, y) onto a
// background of the given color.
func CreateSquareImage(width, height int, background color.Color, x, y, size int, fill color.Color) *image.RGBA {
	img := CreateTestImage(width, height, background)
	draw.Draw(img, image.Rect(x, y, x+size, y+size), &image.Uniform{fill}, image.Point{}, draw.Src)
	return img
}

// SaveImage saves an image to the specified path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// WriteTempImage saves img as name inside a fresh temp dir and returns the path.
func WriteTempImage(t *testing.T, img image.Image, name string) string {
	t.Helper()
	path := filepath.Join(CreateTempDir(t), name)
	SaveImage(t, img, path)
	return path
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")

	return img
}

// CompareImages compares two images and returns true if their mean color
// difference relative to the maximum is within tolerance.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	if bounds1 != img2.Bounds() {
		return false
	}

	var totalDiff, pixelCount float64
	for y := bounds1.Min.Y; y < bounds1.Max.Y; y++ {
		for x := bounds1.Min.X; x < bounds1.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}

	avgDiff := totalDiff / pixelCount
	maxDiff := math.Sqrt(4 * 65535 * 65535) // Maximum possible difference

	return (avgDiff / maxDiff) <= tolerance
}
