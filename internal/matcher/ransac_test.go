package matcher

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParams() ransacParams {
	c := DefaultConfig()
	return ransacParams{threshold: c.RansacThreshold, maxIterations: c.MaxIterations, confidence: c.Confidence, seed: c.Seed}
}

func syntheticCorrespondences(n, outliers int, H rectify.Matrix) (src, dst []geometry.Point) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range n {
		p := geometry.Pt(rng.Float64()*400, rng.Float64()*300)
		src = append(src, p)
		if i < outliers {
			dst = append(dst, geometry.Pt(rng.Float64()*400, rng.Float64()*300))
		} else {
			dst = append(dst, H.ApplyPoint(p))
		}
	}
	return src, dst
}

func TestFindHomography_WithOutliers(t *testing.T) {
	truth := rectify.Matrix{0.95, 0.08, 14, -0.04, 1.05, -9, 0.0002, 0.0001, 1}
	src, dst := syntheticCorrespondences(120, 40, truth)

	params := defaultParams()
	params.confidence = 0.9999
	res, err := findHomography(context.Background(), src, dst, params)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.count, 80)
	for i := 40; i < 120; i++ {
		assert.True(t, res.inliers[i], "true correspondence %d rejected", i)
	}

	p := geometry.Pt(200, 150)
	assert.Less(t, geometry.Distance(res.model.ApplyPoint(p), truth.ApplyPoint(p)), 0.1)
}

func TestFindHomography_Deterministic(t *testing.T) {
	src, dst := syntheticCorrespondences(60, 30, rectify.Identity())
	a, err := findHomography(context.Background(), src, dst, defaultParams())
	require.NoError(t, err)
	b, err := findHomography(context.Background(), src, dst, defaultParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFindHomography_Degenerate(t *testing.T) {
	var src []geometry.Point
	for i := range 20 {
		src = append(src, geometry.Pt(float64(i*10), float64(i*5)))
	}
	res, err := findHomography(context.Background(), src, src, defaultParams())
	require.NoError(t, err)
	assert.Zero(t, res.count)

	res, err = findHomography(context.Background(), src[:3], src[:3], defaultParams())
	require.NoError(t, err)
	assert.Zero(t, res.count)
}

func TestFindHomography_Cancelled(t *testing.T) {
	src, dst := syntheticCorrespondences(50, 25, rectify.Identity())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := findHomography(ctx, src, dst, defaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGoodSample(t *testing.T) {
	sq := [4]geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	assert.True(t, goodSample(sq, sq))

	mirrored := [4]geometry.Point{{X: 0, Y: 0}, {X: -10, Y: 0}, {X: -10, Y: 10}, {X: 0, Y: 10}}
	assert.False(t, goodSample(sq, mirrored))

	collinear := [4]geometry.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}
	assert.False(t, goodSample(collinear, sq))
}

func TestAdaptiveIterations(t *testing.T) {
	assert.Equal(t, 1, adaptiveIterations(100, 100, 0.995, 2000))
	assert.Equal(t, 2000, adaptiveIterations(0, 100, 0.995, 2000))
	k := adaptiveIterations(50, 100, 0.995, 2000)
	assert.InDelta(t, 83, k, 2)
	assert.Equal(t, 2000, adaptiveIterations(5, 100, 0.995, 2000))
}
