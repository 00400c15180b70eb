package features

import (
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/MeKo-Tech/wallsight/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelQuotas(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8} {
		q := levelQuotas(500, 1.2, n)
		require.Len(t, q, n)
		sum := 0
		for i, v := range q {
			sum += v
			if i > 0 && i < n-1 {
				assert.LessOrEqual(t, v, q[i-1])
			}
		}
		assert.Equal(t, 500, sum)
	}
	assert.Empty(t, levelQuotas(500, 1.2, 0))
}

func TestORB_TexturedImage(t *testing.T) {
	img := testutil.GenerateTexturedImage(320, 240, 42)
	f := NewORB(DefaultORBConfig()).Detect(img)

	require.Positive(t, f.Len())
	assert.LessOrEqual(t, f.Len(), 500)
	assert.Equal(t, descriptorBytes, f.DescriptorSize)
	assert.Len(t, f.Descriptors, f.Len()*descriptorBytes)

	seen := map[string]bool{}
	for i, kp := range f.Keypoints {
		assert.GreaterOrEqual(t, kp.Pt.X, 0.0)
		assert.GreaterOrEqual(t, kp.Pt.Y, 0.0)
		assert.Less(t, kp.Pt.X, 320.0)
		assert.Less(t, kp.Pt.Y, 240.0)
		d := string(f.Descriptor(i))
		assert.False(t, seen[d], "descriptor %d duplicates a stronger keypoint", i)
		seen[d] = true
	}
	for i := 1; i < f.Len(); i++ {
		assert.GreaterOrEqual(t, f.Keypoints[i-1].Response, f.Keypoints[i].Response)
	}
}

func TestORB_Cap(t *testing.T) {
	cfg := DefaultORBConfig()
	cfg.MaxFeatures = 25
	f := NewORB(cfg).Detect(testutil.GenerateTexturedImage(320, 240, 9))
	assert.Equal(t, 25, f.Len())
}

func TestORB_UniformAndTiny(t *testing.T) {
	orb := NewORB(DefaultORBConfig())
	assert.Zero(t, orb.Detect(testutil.CreateTestImage(200, 200, color.RGBA{90, 140, 200, 255})).Len())
	assert.Zero(t, orb.Detect(testutil.GenerateTexturedImage(30, 30, 1)).Len())
	assert.Zero(t, orb.Detect(nil).Len())
	assert.Zero(t, orb.Detect(image.NewRGBA(image.Rect(0, 0, 0, 0))).Len())
}

func TestORB_DeterministicAndConcurrent(t *testing.T) {
	img := testutil.GenerateTexturedImage(256, 192, 77)
	orb := NewORB(DefaultORBConfig())
	want := orb.Detect(img)

	var wg sync.WaitGroup
	for range 6 {
		wg.Go(func() {
			got := orb.Detect(img)
			assert.Equal(t, want.Descriptors, got.Descriptors)
			assert.Equal(t, want.Points(), got.Points())
		})
	}
	wg.Wait()
}

func TestORB_OffsetBounds(t *testing.T) {
	img := testutil.GenerateTexturedImage(200, 160, 5)
	shifted := img.SubImage(image.Rect(0, 0, 200, 160)).(*image.RGBA)
	shifted.Rect = shifted.Rect.Add(image.Pt(1000, 1000))

	orb := NewORB(DefaultORBConfig())
	assert.Equal(t, orb.Detect(img).Points(), orb.Detect(shifted).Points())
}

func TestORBConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultORBConfig().Validate())

	bad := ORBConfig{MaxFeatures: 0, Levels: 0, ScaleFactor: 1, FastThreshold: 0, BlurSigma: -1}
	err := bad.Validate()
	require.Error(t, err)
	for _, key := range []string{"max_features", "levels", "scale_factor", "fast_threshold", "blur_sigma"} {
		assert.Contains(t, err.Error(), key)
	}
	assert.Equal(t, DefaultORBConfig(), NewORB(bad).Config())
}
