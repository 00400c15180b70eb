package rectify

import (
	"image"
	"image/draw"
	"math"
)

// warpPerspective renders a dstW x dstH image whose pixel (x, y) is sampled
// from src at inv.Apply(x, y) in src coordinates. Samples outside src are
// left transparent.
func warpPerspective(src *image.RGBA, inv Matrix, dstW, dstH int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	for y := range dstH {
		row := out.Pix[y*out.Stride:]
		for x := range dstW {
			sx, sy := inv.Apply(float64(x), float64(y))
			px, ok := bilinearSample(src, sx, sy)
			if !ok {
				continue
			}
			copy(row[x*4:x*4+4], px[:])
		}
	}
	return out
}

// bilinearSample interpolates the four neighbours of (x, y). It reports false
// when the coordinate falls outside the image.
func bilinearSample(src *image.RGBA, x, y float64) ([4]uint8, bool) {
	b := src.Bounds()
	if math.IsNaN(x) || math.IsNaN(y) ||
		x < float64(b.Min.X) || y < float64(b.Min.Y) || x > float64(b.Max.X-1) || y > float64(b.Max.Y-1) {
		return [4]uint8{}, false
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := min(x0+1, b.Max.X-1)
	y1 := min(y0+1, b.Max.Y-1)
	fx := x - float64(x0)
	fy := y - float64(y0)

	c00 := src.PixOffset(x0, y0)
	c10 := src.PixOffset(x1, y0)
	c01 := src.PixOffset(x0, y1)
	c11 := src.PixOffset(x1, y1)

	var px [4]uint8
	for ch := range 4 {
		top := lerp(float64(src.Pix[c00+ch]), float64(src.Pix[c10+ch]), fx)
		bot := lerp(float64(src.Pix[c01+ch]), float64(src.Pix[c11+ch]), fx)
		v := lerp(top, bot, fy) + 0.5
		if v > 255 {
			v = 255
		}
		px[ch] = uint8(v)
	}
	return px, true
}

// toRGBA returns img as *image.RGBA, converting only when necessary.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
