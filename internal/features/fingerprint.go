package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
)

// DescriptorType names the element type of Fingerprint.Descriptors.
type DescriptorType string

// DescriptorU8 marks packed binary descriptors stored as unsigned bytes.
const DescriptorU8 DescriptorType = "u8"

// ErrInvalidFingerprint is returned when a fingerprint's shape metadata does
// not agree with its contents.
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// Fingerprint is a serializable snapshot of the features of a target image.
// Keypoints are in the pixel space of the image it was extracted from.
type Fingerprint struct {
	Keypoints      []geometry.Point `json:"keypoints"`
	Descriptors    []byte           `json:"descriptors"`
	DescriptorRows int              `json:"descriptor_rows"`
	DescriptorCols int              `json:"descriptor_cols"`
	DescriptorType DescriptorType   `json:"descriptor_type"`
	// Size of the source image; optional metadata for overlays.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// NewFingerprint converts detector output into a fingerprint.
func NewFingerprint(f Features, width, height int) *Fingerprint {
	return &Fingerprint{
		Keypoints:      f.Points(),
		Descriptors:    append([]byte(nil), f.Descriptors...),
		DescriptorRows: f.Len(),
		DescriptorCols: f.DescriptorSize,
		DescriptorType: DescriptorU8,
		Width:          width,
		Height:         height,
	}
}

// Len returns the number of keypoints.
func (fp *Fingerprint) Len() int {
	if fp == nil {
		return 0
	}
	return fp.DescriptorRows
}

// IsEmpty reports whether fp carries no usable descriptors.
func (fp *Fingerprint) IsEmpty() bool {
	return fp == nil || fp.DescriptorRows == 0 || fp.DescriptorCols == 0 || len(fp.Descriptors) == 0
}

// Descriptor returns the i-th descriptor row.
func (fp *Fingerprint) Descriptor(i int) []byte {
	return fp.Descriptors[i*fp.DescriptorCols : (i+1)*fp.DescriptorCols]
}

// Features returns fp as detector output with zero orientation and response.
func (fp *Fingerprint) Features() Features {
	kps := make([]Keypoint, len(fp.Keypoints))
	for i, p := range fp.Keypoints {
		kps[i] = Keypoint{Pt: p}
	}
	return Features{Keypoints: kps, Descriptors: fp.Descriptors, DescriptorSize: fp.DescriptorCols}
}

// Target returns the rectangle spanned by the source image, or the keypoint
// bounds when the size is unknown.
func (fp *Fingerprint) Target() geometry.Quad {
	if fp.Width > 0 && fp.Height > 0 {
		return geometry.Rect(0, 0, float64(fp.Width), float64(fp.Height))
	}
	b := geometry.BoundingBox(fp.Keypoints)
	return geometry.Rect(b.MinX, b.MinY, b.Width(), b.Height())
}

// Validate checks that the shape metadata agrees with the contents.
func (fp *Fingerprint) Validate() error {
	if fp == nil {
		return fmt.Errorf("%w: nil", ErrInvalidFingerprint)
	}
	if fp.DescriptorType != DescriptorU8 {
		return fmt.Errorf("%w: unsupported descriptor type %q", ErrInvalidFingerprint, fp.DescriptorType)
	}
	if fp.DescriptorRows < 0 || fp.DescriptorCols < 0 {
		return fmt.Errorf("%w: negative shape %dx%d", ErrInvalidFingerprint, fp.DescriptorRows, fp.DescriptorCols)
	}
	if fp.DescriptorRows*fp.DescriptorCols != len(fp.Descriptors) {
		return fmt.Errorf("%w: %dx%d descriptors but %d bytes",
			ErrInvalidFingerprint, fp.DescriptorRows, fp.DescriptorCols, len(fp.Descriptors))
	}
	if fp.DescriptorRows != len(fp.Keypoints) {
		return fmt.Errorf("%w: %d descriptor rows but %d keypoints",
			ErrInvalidFingerprint, fp.DescriptorRows, len(fp.Keypoints))
	}
	if fp.DescriptorRows > 0 && fp.DescriptorCols == 0 {
		return fmt.Errorf("%w: zero-width descriptors", ErrInvalidFingerprint)
	}
	for i, p := range fp.Keypoints {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: keypoint %d is not finite", ErrInvalidFingerprint, i)
		}
	}
	if fp.Width < 0 || fp.Height < 0 {
		return fmt.Errorf("%w: negative source size", ErrInvalidFingerprint)
	}
	return nil
}
