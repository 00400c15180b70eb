package rectify

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

var (
	quadColor   = color.RGBA{255, 0, 0, 255}
	outputColor = color.RGBA{0, 255, 0, 255}
)

const compareGap = 10

// debugPaths returns the overlay and compare file names for one Apply call.
func debugPaths(dir string) (overlay, compare string) {
	ts := time.Now().UnixNano()
	return filepath.Join(dir, fmt.Sprintf("rect_overlay_%d.png", ts)),
		filepath.Join(dir, fmt.Sprintf("rect_compare_%d.png", ts))
}

// outlineQuad returns a copy of src, moved to the origin, with q outlined
// and its first corner marked.
func outlineQuad(src image.Image, q geometry.Quad) *image.NRGBA {
	b := src.Bounds()
	canvas := imaging.Clone(src)
	q = q.Offset(geometry.Pt(-float64(b.Min.X), -float64(b.Min.Y)))

	utils.DrawPolygon(canvas, q.Points(), quadColor, 2)
	utils.DrawCross(canvas, q[0], 6, quadColor)
	return canvas
}

// writeOverlay saves src with the quad drawn on top.
func writeOverlay(dir string, src image.Image, q geometry.Quad) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path, _ := debugPaths(dir)
	return path, imaging.Save(outlineQuad(src, q), path)
}

// writeCompare saves the outlined source and the rectified output side by
// side.
func writeCompare(dir string, src image.Image, q geometry.Quad, dst image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	_, path := debugPaths(dir)

	left := outlineQuad(src, q)
	right := imaging.Clone(dst)
	db := right.Bounds()
	utils.DrawRect(right, db, outputColor, 2)

	lb := left.Bounds()
	canvas := imaging.New(lb.Dx()+compareGap+db.Dx(), max(lb.Dy(), db.Dy()), color.Black)
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, right, image.Pt(lb.Dx()+compareGap, 0))
	return path, imaging.Save(canvas, path)
}
