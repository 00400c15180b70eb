package matcher

import (
	"errors"
	"fmt"
)

// Config holds the tunables of descriptor matching and geometric verification.
type Config struct {
	RatioThreshold  float64 `mapstructure:"ratio_threshold" yaml:"ratio_threshold" json:"ratio_threshold"`
	MaxDistance     int     `mapstructure:"max_distance" yaml:"max_distance" json:"max_distance"`
	RansacThreshold float64 `mapstructure:"ransac_threshold" yaml:"ransac_threshold" json:"ransac_threshold"`
	MaxIterations   int     `mapstructure:"max_iterations" yaml:"max_iterations" json:"max_iterations"`
	Confidence      float64 `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	MinInliers      int     `mapstructure:"min_inliers" yaml:"min_inliers" json:"min_inliers"`
	Seed            uint64  `mapstructure:"seed" yaml:"seed" json:"seed"`
	// MaxFrameSide downsizes larger frames before detection; 0 disables it.
	MaxFrameSide int `mapstructure:"max_frame_side" yaml:"max_frame_side" json:"max_frame_side"`
}

// DefaultConfig returns sensible defaults for matching.
func DefaultConfig() Config {
	return Config{
		RatioThreshold:  0.75,
		MaxDistance:     64,
		RansacThreshold: 3.0,
		MaxIterations:   2000,
		Confidence:      0.995,
		MinInliers:      10,
		Seed:            0x9e3779b9,
		MaxFrameSide:    0,
	}
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	var errs []error
	if c.RatioThreshold <= 0 || c.RatioThreshold > 1 {
		errs = append(errs, fmt.Errorf("ratio_threshold must be in (0,1], got %g", c.RatioThreshold))
	}
	if c.MaxDistance <= 0 {
		errs = append(errs, fmt.Errorf("max_distance must be positive, got %d", c.MaxDistance))
	}
	if c.RansacThreshold <= 0 {
		errs = append(errs, fmt.Errorf("ransac_threshold must be positive, got %g", c.RansacThreshold))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		errs = append(errs, fmt.Errorf("confidence must be in (0,1), got %g", c.Confidence))
	}
	if c.MinInliers < 4 {
		errs = append(errs, fmt.Errorf("min_inliers must be at least 4, got %d", c.MinInliers))
	}
	if c.MaxFrameSide < 0 {
		errs = append(errs, fmt.Errorf("max_frame_side must not be negative, got %d", c.MaxFrameSide))
	}
	return errors.Join(errs...)
}
