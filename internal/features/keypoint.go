package features

import (
	"image"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
)

// Keypoint is a detected corner in level-0 pixel coordinates.
type Keypoint struct {
	Pt       geometry.Point
	Angle    float64 // orientation in radians
	Response float64 // Harris corner response
	Level    int     // pyramid level the corner was found on
	Size     float64 // diameter of the described patch in level-0 pixels
}

// Features is the output of a Detector: keypoints plus one packed binary
// descriptor per keypoint, row-major.
type Features struct {
	Keypoints      []Keypoint
	Descriptors    []byte
	DescriptorSize int // bytes per descriptor
}

// Len returns the number of keypoints.
func (f Features) Len() int { return len(f.Keypoints) }

// Descriptor returns the i-th descriptor row.
func (f Features) Descriptor(i int) []byte {
	return f.Descriptors[i*f.DescriptorSize : (i+1)*f.DescriptorSize]
}

// Points returns the keypoint locations.
func (f Features) Points() []geometry.Point {
	pts := make([]geometry.Point, len(f.Keypoints))
	for i, kp := range f.Keypoints {
		pts[i] = kp.Pt
	}
	return pts
}

// Detector finds keypoints and computes their binary descriptors.
// Implementations must be safe for concurrent use.
type Detector interface {
	Detect(img image.Image) Features
}
