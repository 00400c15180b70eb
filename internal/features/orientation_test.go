package features

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func gradientGray(w, h int, f func(x, y int) uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			g.Pix[y*g.Stride+x] = f(x, y)
		}
	}
	return g
}

func TestIntensityCentroidAngle(t *testing.T) {
	right := gradientGray(41, 41, func(x, _ int) uint8 { return uint8(x * 6) })
	assert.InDelta(t, 0, intensityCentroidAngle(right, 20, 20), 1e-9)

	down := gradientGray(41, 41, func(_, y int) uint8 { return uint8(y * 6) })
	assert.InDelta(t, math.Pi/2, intensityCentroidAngle(down, 20, 20), 1e-9)

	left := gradientGray(41, 41, func(x, _ int) uint8 { return uint8(240 - x*6) })
	assert.InDelta(t, math.Pi, math.Abs(intensityCentroidAngle(left, 20, 20)), 1e-9)
}

func TestUmaxIsCircular(t *testing.T) {
	assert.Equal(t, halfPatch, umax[0])
	for v := 1; v <= halfPatch; v++ {
		assert.LessOrEqual(t, umax[v], umax[v-1])
		r := math.Hypot(float64(umax[v]), float64(v))
		assert.LessOrEqual(t, r, float64(halfPatch)+0.5)
	}
}
