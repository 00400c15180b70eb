package matcher

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/testutil"
	"github.com/MeKo-Tech/wallsight/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, fp *features.Fingerprint) *features.Fingerprint {
	t.Helper()
	data, err := features.MarshalJSONBytes(fp)
	require.NoError(t, err)
	got, err := features.UnmarshalJSONBytes(data)
	require.NoError(t, err)
	return got
}

func TestMatch_SelfMatchAfterRoundTrip(t *testing.T) {
	tests := map[string]image.Image{
		"textured":          testutil.GenerateTexturedImage(320, 240, 42),
		"checkerboard 16px": testutil.GenerateCheckerboard(320, 240, 16),
		"checkerboard 20px": testutil.GenerateCheckerboard(320, 240, 20),
		"checkerboard 32px": testutil.GenerateCheckerboard(320, 240, 32),
	}
	m := New(DefaultConfig(), nil)
	for name, img := range tests {
		t.Run(name, func(t *testing.T) {
			fp, ok := features.Extract(img)
			require.True(t, ok)
			stored := roundTrip(t, fp)

			res := m.Match(img, stored)
			assert.True(t, res.IsMatch)
			assert.GreaterOrEqual(t, res.InlierCount, stored.DescriptorRows)
			require.NotNil(t, res.Homography)

			corners, ok := res.TargetCorners(stored)
			require.True(t, ok)
			for i, c := range geometry.Rect(0, 0, 320, 240) {
				assert.Less(t, geometry.Distance(corners[i], c), 1.0, "corner %d", i)
			}
		})
	}
}

func TestMatch_TranslatedCrop(t *testing.T) {
	img := testutil.GenerateTexturedImage(320, 240, 8)
	fp, ok := features.Extract(img)
	require.True(t, ok)

	frame := utils.CropImageRect(img, image.Rect(20, 12, 320, 240))
	res := New(DefaultConfig(), nil).Match(frame, fp)
	require.True(t, res.IsMatch, "inliers=%d candidates=%d", res.InlierCount, res.Candidates)

	got := res.Homography.ApplyPoint(geometry.Pt(160, 120))
	assert.InDelta(t, 140, got.X, 2)
	assert.InDelta(t, 108, got.Y, 2)
}

func TestMatch_UnrelatedNoiseRejected(t *testing.T) {
	m := New(DefaultConfig(), nil)
	for seed := range uint64(5) {
		a := testutil.GenerateNoiseImage(200, 200, 100+seed)
		b := testutil.GenerateNoiseImage(200, 200, 200+seed)
		fp, ok := features.Extract(b)
		require.True(t, ok)

		res := m.Match(a, fp)
		assert.False(t, res.IsMatch, "seed %d", seed)
		assert.Less(t, res.InlierCount, DefaultConfig().MinInliers, "seed %d", seed)
		assert.Nil(t, res.Homography)
	}
}

func TestMatch_NoUsableDescriptors(t *testing.T) {
	m := New(DefaultConfig(), nil)
	textured := testutil.GenerateTexturedImage(200, 150, 3)
	fp, ok := features.Extract(textured)
	require.True(t, ok)

	tests := map[string]struct {
		frame  image.Image
		stored *features.Fingerprint
	}{
		"nil fingerprint":   {textured, nil},
		"empty fingerprint": {textured, &features.Fingerprint{DescriptorType: features.DescriptorU8}},
		"blank frame":       {testutil.CreateTestImage(200, 150, color.Black), fp},
		"nil frame":         {nil, fp},
		"corrupt fingerprint": {textured, &features.Fingerprint{
			Descriptors: []byte{1, 2, 3}, DescriptorRows: 4, DescriptorCols: 32, DescriptorType: features.DescriptorU8,
		}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := m.Match(tt.frame, tt.stored)
			assert.False(t, res.IsMatch)
			assert.Zero(t, res.InlierCount)
			assert.Nil(t, res.Homography)
		})
	}
}

func TestMatchMin_Threshold(t *testing.T) {
	img := testutil.GenerateTexturedImage(240, 180, 13)
	fp, ok := features.Extract(img)
	require.True(t, ok)

	m := New(DefaultConfig(), nil)
	assert.False(t, m.MatchMin(img, fp, fp.DescriptorRows+1).IsMatch)
	assert.True(t, m.MatchMin(img, fp, fp.DescriptorRows).IsMatch)
	assert.True(t, m.MatchMin(img, fp, 0).IsMatch)
}

func TestMatchContext(t *testing.T) {
	img := testutil.GenerateTexturedImage(240, 180, 14)
	fp, ok := features.Extract(img)
	require.True(t, ok)
	m := New(DefaultConfig(), nil)

	res, err := m.MatchContext(context.Background(), img, fp)
	require.NoError(t, err)
	assert.True(t, res.IsMatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.MatchContext(ctx, img, fp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchFeatures_ReusesDetection(t *testing.T) {
	img := testutil.GenerateTexturedImage(240, 180, 15)
	fp, ok := features.Extract(img)
	require.True(t, ok)
	m := New(DefaultConfig(), nil)

	frame := m.DetectFrame(img)
	res, err := m.MatchFeatures(context.Background(), frame, fp)
	require.NoError(t, err)
	assert.Equal(t, m.Match(img, fp).InlierCount, res.InlierCount)
	assert.Equal(t, frame.Len(), res.FrameKeypoints)
}

func TestDetectFrame_MaxFrameSide(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFrameSide = 160
	m := New(cfg, nil)

	f := m.DetectFrame(testutil.GenerateTexturedImage(320, 240, 16))
	require.Positive(t, f.Len())
	maxX := 0.0
	for _, kp := range f.Keypoints {
		maxX = max(maxX, kp.Pt.X)
	}
	assert.Greater(t, maxX, 160.0, "keypoints are mapped back to frame coordinates")
}

func TestResult_JSON(t *testing.T) {
	data, err := json.Marshal(Result{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_match":false,"inlier_count":0,"homography":null,"candidates":0,"frame_keypoints":0}`, string(data))

	_, ok := Result{}.TargetCorners(&features.Fingerprint{})
	assert.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := Config{RatioThreshold: 2, MaxDistance: 0, RansacThreshold: 0, MaxIterations: 0, Confidence: 1, MinInliers: 2, MaxFrameSide: -1}
	err := bad.Validate()
	require.Error(t, err)
	for _, key := range []string{"ratio_threshold", "max_distance", "ransac_threshold", "max_iterations", "confidence", "min_inliers", "max_frame_side"} {
		assert.Contains(t, err.Error(), key)
	}
	assert.Equal(t, DefaultConfig(), New(bad, nil).Config())
}
