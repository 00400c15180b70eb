package benchmark

import (
	"context"
	"errors"
	"image"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
)

// Stage names registered by NewPipelineSuite.
const (
	StageRectify = "rectify"
	StageExtract = "extract"
	StageDetect  = "detect_frame"
	StageMatch   = "match"
	StageAverage = "average"
)

// Pipeline describes the inputs of a full pipeline benchmark.
type Pipeline struct {
	// Image is the wall photo the target is cut from.
	Image image.Image
	// Quad is the target region of Image. The zero quad selects all of it.
	Quad geometry.Quad
	// Frame is matched against the extracted fingerprint. Nil reuses Image.
	Frame image.Image

	Rectifier *rectify.Rectifier
	Extractor *features.Extractor
	Matcher   *matcher.Matcher
}

// NewPipelineSuite prepares the fingerprint once and registers one benchmark
// per pipeline stage. It fails when the target has no trackable features.
func NewPipelineSuite(p Pipeline) (*Suite, error) {
	if p.Image == nil {
		return nil, errors.New("nil image")
	}
	if p.Rectifier == nil {
		p.Rectifier = rectify.New(rectify.DefaultConfig())
	}
	if p.Extractor == nil {
		p.Extractor = features.NewExtractor(nil)
	}
	if p.Matcher == nil {
		p.Matcher = matcher.New(matcher.DefaultConfig(), p.Extractor.Detector())
	}
	if p.Quad == (geometry.Quad{}) {
		b := p.Image.Bounds()
		p.Quad = geometry.Rect(float64(b.Min.X), float64(b.Min.Y), float64(b.Dx()), float64(b.Dy()))
	}

	out, err := p.Rectifier.Apply(p.Image, p.Quad)
	if err != nil {
		return nil, err
	}
	fp, ok := p.Extractor.Extract(out.Image)
	if !ok {
		return nil, errors.New("no trackable features in target")
	}
	frame := p.Frame
	if frame == nil {
		frame = p.Image
	}
	detected := p.Matcher.DetectFrame(frame)

	samples := make([]calibration.Quaternion, 64)
	for i := range samples {
		samples[i] = calibration.FromAxisAngle(0, 1, 0, 0.01*float64(i%8))
		if i%2 == 1 {
			samples[i] = samples[i].Negate()
		}
	}

	s := NewSuite()
	s.Add(StageRectify, func(context.Context) error {
		_, err := p.Rectifier.Apply(p.Image, p.Quad)
		return err
	})
	s.Add(StageExtract, func(context.Context) error {
		if _, ok := p.Extractor.Extract(out.Image); !ok {
			return errors.New("no trackable features in target")
		}
		return nil
	})
	s.Add(StageDetect, func(context.Context) error {
		p.Matcher.DetectFrame(frame)
		return nil
	})
	s.Add(StageMatch, func(ctx context.Context) error {
		_, err := p.Matcher.MatchFeatures(ctx, detected, fp)
		return err
	})
	s.Add(StageAverage, func(context.Context) error {
		calibration.Average(samples)
		return nil
	})
	return s, nil
}
