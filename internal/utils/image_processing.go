package utils

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ImageConstraints bounds the size of images entering the pipeline.
type ImageConstraints struct {
	MaxWidth  int
	MaxHeight int
	MinWidth  int
	MinHeight int
}

// DefaultImageConstraints returns the default constraints for camera frames.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{
		MaxWidth:  1920,
		MaxHeight: 1920,
		MinWidth:  16,
		MinHeight: 16,
	}
}

// ValidateImageConstraints checks dimensions against the minimums.
func ValidateImageConstraints(img image.Image, constraints ImageConstraints) error {
	if img == nil {
		return &ImageProcessingError{Operation: "validate", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < constraints.MinWidth || h < constraints.MinHeight {
		return &ImageProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("image too small: %dx%d < %dx%d", w, h, constraints.MinWidth, constraints.MinHeight),
		}
	}
	return nil
}

// ResizeImage scales img down, preserving aspect ratio, until it fits within
// the maximum dimensions. It never upscales and returns the scale applied.
func ResizeImage(img image.Image, constraints ImageConstraints) (image.Image, float64, error) {
	if err := ValidateImageConstraints(img, constraints); err != nil {
		return nil, 0, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scale := 1.0
	if constraints.MaxWidth > 0 {
		scale = math.Min(scale, float64(constraints.MaxWidth)/float64(width))
	}
	if constraints.MaxHeight > 0 {
		scale = math.Min(scale, float64(constraints.MaxHeight)/float64(height))
	}
	if scale >= 1.0 {
		return img, 1.0, nil
	}

	newWidth := max(1, int(math.Round(float64(width)*scale)))
	newHeight := max(1, int(math.Round(float64(height)*scale)))
	return imaging.Resize(img, newWidth, newHeight, imaging.Linear), scale, nil
}

// ToGray converts img into an 8-bit luma image with bounds starting at 0,0.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	// imaging normalizes the origin and uses ITU-R 601 luma weights.
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		src := nrgba.Pix[y*nrgba.Stride:]
		dst := gray.Pix[y*gray.Stride:]
		for x := range b.Dx() {
			dst[x] = src[x*4]
		}
	}
	return gray
}

// CropImageRect returns the rect region of img as a new image.
func CropImageRect(img image.Image, rect image.Rectangle) image.Image {
	return imaging.Crop(img, rect)
}
