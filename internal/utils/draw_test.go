package utils

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/stretchr/testify/assert"
)

func TestDrawRect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	red := color.RGBA{255, 0, 0, 255}
	DrawRect(img, image.Rect(2, 2, 8, 8), red, 1)

	assert.Equal(t, red, img.RGBAAt(2, 2))
	assert.Equal(t, red, img.RGBAAt(7, 7))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(5, 5))

	// Fully outside is a no-op.
	DrawRect(img, image.Rect(20, 20, 30, 30), red, 1)
}

func TestDrawPolygon(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	green := color.RGBA{0, 255, 0, 255}
	q := geometry.Rect(2, 2, 10, 10)
	DrawPolygon(img, q.Points(), green, 1)

	assert.Equal(t, green, img.RGBAAt(2, 2))
	assert.Equal(t, green, img.RGBAAt(12, 7))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(7, 7))
}

func TestDrawPolygon_SkipsNonFinite(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	pts := []geometry.Point{{X: math.NaN(), Y: 0}, {X: math.Inf(1), Y: 1}, {X: 1, Y: 1}}
	assert.NotPanics(t, func() { DrawPolygon(img, pts, color.White, 1) })
}

func TestDrawCross(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 9, 9))
	DrawCross(img, geometry.Pt(4, 4), 2, color.White)
	assert.Equal(t, uint8(255), img.RGBAAt(2, 4).R)
	assert.Equal(t, uint8(255), img.RGBAAt(4, 6).R)
	assert.Equal(t, uint8(0), img.RGBAAt(2, 2).R)
}
