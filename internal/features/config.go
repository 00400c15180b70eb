package features

import (
	"errors"
	"fmt"
)

// ORBConfig controls the oriented FAST / rotated BRIEF detector.
type ORBConfig struct {
	MaxFeatures   int     // global cap on returned keypoints
	Levels        int     // pyramid levels, level 0 is the input resolution
	ScaleFactor   float64 // downscale between consecutive levels
	FastThreshold int     // FAST-9 intensity threshold
	BlurSigma     float64 // Gaussian sigma applied before sampling BRIEF pairs
}

// DefaultORBConfig returns sensible defaults for ORB.
func DefaultORBConfig() ORBConfig {
	return ORBConfig{
		MaxFeatures:   500,
		Levels:        4,
		ScaleFactor:   1.2,
		FastThreshold: 20,
		BlurSigma:     2.0,
	}
}

// Validate checks the configuration for unusable values.
func (c ORBConfig) Validate() error {
	var errs []error
	if c.MaxFeatures <= 0 {
		errs = append(errs, fmt.Errorf("max_features must be positive, got %d", c.MaxFeatures))
	}
	if c.Levels < 1 || c.Levels > 16 {
		errs = append(errs, fmt.Errorf("levels must be in [1,16], got %d", c.Levels))
	}
	if c.ScaleFactor <= 1 || c.ScaleFactor > 4 {
		errs = append(errs, fmt.Errorf("scale_factor must be in (1,4], got %g", c.ScaleFactor))
	}
	if c.FastThreshold < 1 || c.FastThreshold > 254 {
		errs = append(errs, fmt.Errorf("fast_threshold must be in [1,254], got %d", c.FastThreshold))
	}
	if c.BlurSigma < 0 {
		errs = append(errs, fmt.Errorf("blur_sigma must not be negative, got %g", c.BlurSigma))
	}
	return errors.Join(errs...)
}
