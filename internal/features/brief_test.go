package features

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBriefPattern(t *testing.T) {
	assert.Equal(t, briefPattern, generatePattern(patternSeed), "pattern must be reproducible")
	assert.NotEqual(t, briefPattern, generatePattern(patternSeed+1))

	for i, p := range briefPattern {
		for _, v := range []float64{p.x1, p.y1, p.x2, p.y2} {
			require.LessOrEqual(t, math.Abs(v), float64(patternRadius), "pair %d", i)
		}
		require.False(t, p.x1 == p.x2 && p.y1 == p.y2, "pair %d compares a pixel with itself", i)
	}
	// Rotated samples stay inside the border.
	assert.Less(t, math.Ceil(patternRadius*math.Sqrt2), float64(borderWidth))
}

func TestComputeBRIEF(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	desc := make([]byte, descriptorBytes)
	for i := range desc {
		desc[i] = 0xFF
	}
	computeBRIEF(flat, 32, 32, 0.3, desc)
	assert.Equal(t, make([]byte, descriptorBytes), desc, "flat patch compares equal everywhere")

	noisy := gradientGray(64, 64, func(x, y int) uint8 { return uint8((x*37 + y*91) % 251) })
	a := make([]byte, descriptorBytes)
	b := make([]byte, descriptorBytes)
	computeBRIEF(noisy, 32, 32, 0, a)
	computeBRIEF(noisy, 32, 32, 0, b)
	assert.Equal(t, a, b)
	assert.NotEqual(t, make([]byte, descriptorBytes), a)
}
