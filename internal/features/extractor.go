// Package features detects keypoints with binary descriptors and packages
// them as serializable fingerprints of a target surface.
package features

import (
	"image"
)

// Extractor turns images into fingerprints.
type Extractor struct {
	detector Detector
}

// NewExtractor creates an extractor. A nil detector selects ORB with
// default settings.
func NewExtractor(d Detector) *Extractor {
	if d == nil {
		d = NewORB(DefaultORBConfig())
	}
	return &Extractor{detector: d}
}

// Detector returns the detector used for extraction.
func (e *Extractor) Detector() Detector { return e.detector }

// Extract fingerprints img. It reports false when no keypoints are found,
// which is how an untrackable (blank or uniform) surface is signalled.
func (e *Extractor) Extract(img image.Image) (*Fingerprint, bool) {
	if img == nil {
		return nil, false
	}
	f := e.detector.Detect(img)
	if f.Len() == 0 {
		return nil, false
	}
	b := img.Bounds()
	return NewFingerprint(f, b.Dx(), b.Dy()), true
}

// Extract fingerprints img with the default ORB detector.
func Extract(img image.Image) (*Fingerprint, bool) {
	return NewExtractor(nil).Extract(img)
}
