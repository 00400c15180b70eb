package utils

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
)

const maxDrawCoord = 1 << 16

// DrawRect draws an axis-aligned rectangle outline into dst. The outline
// grows inwards with thickness.
func DrawRect(dst draw.Image, rect image.Rectangle, col color.Color, thickness int) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	t := min(max(thickness, 1), (min(rect.Dx(), rect.Dy())+1)/2)
	src := image.NewUniform(col)
	for _, band := range []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+t),
		image.Rect(rect.Min.X, rect.Max.Y-t, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+t, rect.Max.Y),
		image.Rect(rect.Max.X-t, rect.Min.Y, rect.Max.X, rect.Max.Y),
	} {
		draw.Draw(dst, band, src, image.Point{}, draw.Src)
	}
}

// DrawPolygon draws connected line segments and closes the polygon.
// Non-finite and far off-canvas points are skipped.
func DrawPolygon(dst draw.Image, pts []geometry.Point, col color.Color, thickness int) {
	ip := make([]image.Point, 0, len(pts))
	for _, p := range pts {
		if !(math.Abs(p.X) < maxDrawCoord && math.Abs(p.Y) < maxDrawCoord) {
			continue
		}
		ip = append(ip, image.Pt(int(math.Round(p.X)), int(math.Round(p.Y))))
	}
	if len(ip) < 2 {
		return
	}
	for i := range ip {
		drawLine(dst, ip[i], ip[(i+1)%len(ip)], col, thickness)
	}
}

// DrawCross marks p with a small plus sign.
func DrawCross(dst draw.Image, p geometry.Point, size int, col color.Color) {
	c := image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	drawLine(dst, c.Add(image.Pt(-size, 0)), c.Add(image.Pt(size, 0)), col, 1)
	drawLine(dst, c.Add(image.Pt(0, -size)), c.Add(image.Pt(0, size)), col, 1)
}

// drawLine draws a line between two points using a simple Bresenham variant.
func drawLine(dst draw.Image, a, b image.Point, col color.Color, thickness int) {
	x0, y0 := a.X, a.Y
	x1, y1 := b.X, b.Y
	dx := int(math.Abs(float64(x1 - x0)))
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -int(math.Abs(float64(y1 - y0)))
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		drawThickPoint(dst, x0, y0, col, thickness)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawThickPoint(dst draw.Image, x, y int, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r := (thickness - 1) / 2
	for yy := y - r; yy <= y+r; yy++ {
		for xx := x - r; xx <= x+r; xx++ {
			if image.Pt(xx, yy).In(dst.Bounds()) {
				dst.Set(xx, yy, col)
			}
		}
	}
}
