// Package rectify turns a perspective-distorted quadrilateral region of an
// image into a fronto-parallel rectangle.
package rectify

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
)

// sizeEps absorbs float noise before rounding output dimensions up.
const sizeEps = 1e-6

// Output is the result of a rectification.
type Output struct {
	Image *image.RGBA
	// Homography maps source pixel coordinates to output pixel coordinates.
	Homography Matrix
	Width      int
	Height     int
}

// Rectifier warps quads out of source images. It holds no per-call state and
// is safe for concurrent use.
type Rectifier struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a rectifier.
func New(cfg Config) *Rectifier {
	return &Rectifier{cfg: cfg, logger: slog.Default()}
}

// WithLogger returns a copy of r that logs to logger.
func (r *Rectifier) WithLogger(logger *slog.Logger) *Rectifier {
	cp := *r
	if logger != nil {
		cp.logger = logger
	}
	return &cp
}

// Config returns the rectifier configuration.
func (r *Rectifier) Config() Config { return r.cfg }

// Apply rectifies the pixel-space quad q of img. The output measures
// ceil(w) x ceil(h) where (w, h) are the quad's bounding dimensions, scaled
// down to fit MaxOutputSide when set.
func (r *Rectifier) Apply(img image.Image, q geometry.Quad) (*Output, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := geometry.Validate(q); err != nil {
		return nil, err
	}

	w, h := geometry.BoundingDimensions(q)
	if r.cfg.MaxOutputSide > 0 {
		if longest := math.Max(w, h); longest > float64(r.cfg.MaxOutputSide) {
			s := float64(r.cfg.MaxOutputSide) / longest
			w *= s
			h *= s
		}
	}
	outW, outH := int(math.Ceil(w-sizeEps)), int(math.Ceil(h-sizeEps))
	if outW <= 0 || outH <= 0 {
		return nil, fmt.Errorf("%w: output size %dx%d", geometry.ErrDegenerateQuad, outW, outH)
	}

	H, err := ComputeHomography(q, w, h)
	if err != nil {
		return nil, err
	}
	inv, err := H.Inverse()
	if err != nil {
		return nil, err
	}

	if r.cfg.DebugDir != "" {
		if path, derr := writeOverlay(r.cfg.DebugDir, img, q); derr != nil {
			r.logger.Warn("failed to write rectify overlay", "error", derr)
		} else {
			r.logger.Debug("wrote rectify overlay", "path", path)
		}
	}

	dst := warpPerspective(toRGBA(img), inv, outW, outH)

	if r.cfg.DebugDir != "" {
		if path, derr := writeCompare(r.cfg.DebugDir, img, q, dst); derr != nil {
			r.logger.Warn("failed to write rectify compare", "error", derr)
		} else {
			r.logger.Debug("wrote rectify compare", "path", path)
		}
	}

	r.logger.Debug("rectified quad",
		"src_width", img.Bounds().Dx(), "src_height", img.Bounds().Dy(),
		"out_width", outW, "out_height", outH)

	return &Output{Image: dst, Homography: H, Width: outW, Height: outH}, nil
}

// ApplyNormalized rectifies a quad given in normalized [0,1] coordinates.
func (r *Rectifier) ApplyNormalized(img image.Image, q geometry.Quad) (*Output, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	return r.Apply(img, q.ToPixels(b.Dx(), b.Dy()).Offset(geometry.Pt(float64(b.Min.X), float64(b.Min.Y))))
}

// Rectify warps the pixel-space quad q of img into an upright rectangle using
// the default configuration.
func Rectify(img image.Image, q geometry.Quad) (*image.RGBA, error) {
	out, err := New(DefaultConfig()).Apply(img, q)
	if err != nil {
		return nil, err
	}
	return out.Image, nil
}

// RectifyNormalized is Rectify for a quad in normalized coordinates.
func RectifyNormalized(img image.Image, q geometry.Quad) (*image.RGBA, error) {
	out, err := New(DefaultConfig()).ApplyNormalized(img, q)
	if err != nil {
		return nil, err
	}
	return out.Image, nil
}

// Project is the inverse of Apply: it renders all of img onto the quad q of
// a w x h canvas. Canvas pixels outside q stay transparent.
func Project(img image.Image, q geometry.Quad, w, h int) (*image.RGBA, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", w, h)
	}
	if err := geometry.Validate(q); err != nil {
		return nil, err
	}
	b := img.Bounds()
	src := geometry.Rect(float64(b.Min.X), float64(b.Min.Y), float64(b.Dx()), float64(b.Dy()))
	inv, err := HomographyFromPoints(q, src)
	if err != nil {
		return nil, err
	}
	return warpPerspective(toRGBA(img), inv, w, h), nil
}
