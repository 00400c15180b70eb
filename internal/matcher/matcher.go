// Package matcher decides whether a camera frame shows a fingerprinted
// target and recovers the perspective transform between them.
package matcher

import (
	"context"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

// Result is the outcome of matching one frame. A non-match is a normal
// result, never an error.
type Result struct {
	IsMatch     bool `json:"is_match"`
	InlierCount int  `json:"inlier_count"`
	// Homography maps fingerprint coordinates into frame coordinates. It is
	// set only for matches.
	Homography     *rectify.Matrix `json:"homography"`
	Candidates     int             `json:"candidates"`
	FrameKeypoints int             `json:"frame_keypoints"`
}

// TargetCorners projects the fingerprint's target rectangle into the frame.
func (r Result) TargetCorners(fp *features.Fingerprint) (geometry.Quad, bool) {
	if r.Homography == nil || fp == nil {
		return geometry.Quad{}, false
	}
	return r.Homography.ApplyQuad(fp.Target()), true
}

// Matcher matches frames against stored fingerprints. It holds no per-call
// state and is safe for concurrent use.
type Matcher struct {
	cfg      Config
	detector features.Detector
	logger   *slog.Logger
}

// New creates a matcher. The detector must be the one fingerprints were
// extracted with; nil selects ORB with default settings. Invalid configs
// fall back to defaults.
func New(cfg Config, d features.Detector) *Matcher {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	if d == nil {
		d = features.NewORB(features.DefaultORBConfig())
	}
	return &Matcher{cfg: cfg, detector: d, logger: slog.Default()}
}

// WithLogger returns a copy of m that logs to logger.
func (m *Matcher) WithLogger(logger *slog.Logger) *Matcher {
	cp := *m
	if logger != nil {
		cp.logger = logger
	}
	return &cp
}

// Config returns the matcher configuration.
func (m *Matcher) Config() Config { return m.cfg }

// Match matches frame against stored with the configured minimum inliers.
func (m *Matcher) Match(frame image.Image, stored *features.Fingerprint) Result {
	return m.MatchMin(frame, stored, m.cfg.MinInliers)
}

// MatchMin is Match with an explicit minimum inlier count.
// A non-positive minInliers selects the configured value.
func (m *Matcher) MatchMin(frame image.Image, stored *features.Fingerprint, minInliers int) Result {
	if minInliers <= 0 {
		minInliers = m.cfg.MinInliers
	}
	res, _ := m.match(context.Background(), m.DetectFrame(frame), stored, minInliers)
	return res
}

// MatchContext is Match, aborting between RANSAC iterations once ctx is
// done. The only error it returns is ctx.Err().
func (m *Matcher) MatchContext(ctx context.Context, frame image.Image, stored *features.Fingerprint) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return m.match(ctx, m.DetectFrame(frame), stored, m.cfg.MinInliers)
}

// MatchFeatures matches already detected frame features, so one frame can be
// checked against many fingerprints with a single detection.
func (m *Matcher) MatchFeatures(ctx context.Context, frame features.Features, stored *features.Fingerprint) (Result, error) {
	return m.match(ctx, frame, stored, m.cfg.MinInliers)
}

// DetectFrame runs the detector over frame, downsizing it first when it
// exceeds MaxFrameSide. Keypoints are returned in frame coordinates.
func (m *Matcher) DetectFrame(frame image.Image) features.Features {
	if frame == nil {
		return features.Features{}
	}
	if m.cfg.MaxFrameSide <= 0 {
		return m.detector.Detect(frame)
	}
	c := utils.ImageConstraints{MaxWidth: m.cfg.MaxFrameSide, MaxHeight: m.cfg.MaxFrameSide}
	small, scale, err := utils.ResizeImage(frame, c)
	if err != nil || scale == 1 {
		return m.detector.Detect(frame)
	}
	f := m.detector.Detect(small)
	for i := range f.Keypoints {
		f.Keypoints[i].Pt = f.Keypoints[i].Pt.Scale(1/scale, 1/scale)
	}
	return f
}

func (m *Matcher) match(ctx context.Context, frame features.Features, stored *features.Fingerprint, minInliers int) (Result, error) {
	res := Result{FrameKeypoints: frame.Len()}
	if stored.IsEmpty() || stored.Validate() != nil || frame.Len() == 0 ||
		stored.DescriptorCols != frame.DescriptorSize {
		return res, nil
	}

	pairs := knn2(frame.Descriptors, frame.Len(), stored.Descriptors, stored.DescriptorRows,
		stored.DescriptorCols, m.cfg.MaxDistance, m.cfg.RatioThreshold)
	res.Candidates = len(pairs)
	if len(pairs) < sampleSize {
		return res, nil
	}

	src := make([]geometry.Point, len(pairs))
	dst := make([]geometry.Point, len(pairs))
	for i, p := range pairs {
		src[i] = stored.Keypoints[p.train]
		dst[i] = frame.Keypoints[p.query].Pt
	}

	est, err := findHomography(ctx, src, dst, ransacParams{
		threshold:     m.cfg.RansacThreshold,
		maxIterations: m.cfg.MaxIterations,
		confidence:    m.cfg.Confidence,
		seed:          m.cfg.Seed,
	})
	if err != nil {
		return Result{}, err
	}

	res.InlierCount = est.count
	res.IsMatch = est.count >= minInliers
	if res.IsMatch {
		H := est.model
		res.Homography = &H
	}

	m.logger.Debug("frame matched against fingerprint",
		"frame_keypoints", res.FrameKeypoints,
		"candidates", res.Candidates,
		"inliers", res.InlierCount,
		"is_match", res.IsMatch)
	return res, nil
}
