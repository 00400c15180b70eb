package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateQuad is returned when a quadrilateral is too small, too flat
// or self-intersecting to be rectified. Callers should ask the user to pick
// the corners again.
var ErrDegenerateQuad = errors.New("degenerate quad")

const (
	// MinAreaRatio is the smallest accepted quad area relative to the area of
	// its axis-aligned bounding box and to the square of its longest edge.
	MinAreaRatio = 1e-4
	// MinCornerSine is the smallest accepted |sin| of the angle between two
	// adjacent edges.
	MinCornerSine = 1e-3

	absAreaEps    = 1e-12
	minEdgeFactor = 1e-9
)

// Corner indexes into a Quad.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Space tells whether coordinates are pixels or normalized to [0,1].
type Space int

const (
	// SpacePixel means coordinates are in source image pixels.
	SpacePixel Space = iota
	// SpaceNormalized means coordinates are fractions of the image size.
	SpaceNormalized
)

func (s Space) String() string {
	switch s {
	case SpaceNormalized:
		return "normalized"
	default:
		return "pixel"
	}
}

// Quad is an ordered quadrilateral: top-left, top-right, bottom-right,
// bottom-left.
type Quad [4]Point

// NewQuad builds a Quad from corners in TL, TR, BR, BL order.
func NewQuad(tl, tr, br, bl Point) Quad { return Quad{tl, tr, br, bl} }

// Rect returns the axis-aligned quad covering x..x+w, y..y+h.
func Rect(x, y, w, h float64) Quad {
	return Quad{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
}

// Points returns the corners as a slice.
func (q Quad) Points() []Point { return []Point{q[0], q[1], q[2], q[3]} }

// Bounds returns the axis-aligned bounding box of the corners.
func (q Quad) Bounds() Box { return BoundingBox(q[:]) }

// SignedArea returns the shoelace area. It is positive when the corners run
// clockwise on screen (y pointing down), which is the TL, TR, BR, BL order.
func (q Quad) SignedArea() float64 {
	var s float64
	for i := range 4 {
		a, b := q[i], q[(i+1)%4]
		s += a.X*b.Y - b.X*a.Y
	}
	return s * 0.5
}

// Area returns the unsigned shoelace area.
func (q Quad) Area() float64 { return math.Abs(q.SignedArea()) }

// Centroid returns the average of the four corners.
func (q Quad) Centroid() Point {
	var c Point
	for _, p := range q {
		c.X += p.X
		c.Y += p.Y
	}
	return Point{X: c.X / 4, Y: c.Y / 4}
}

// IsConvex reports whether every corner turns the same way. Self-intersecting
// (bow-tie) and concave quads are not convex.
func (q Quad) IsConvex() bool {
	var pos, neg int
	for i := range 4 {
		c := cross3(q[(i+3)%4], q[i], q[(i+1)%4])
		switch {
		case c > 0:
			pos++
		case c < 0:
			neg++
		}
	}
	return pos == 4 || neg == 4
}

// ToPixels converts a normalized quad into pixel space for a w x h image.
func (q Quad) ToPixels(w, h int) Quad {
	var out Quad
	for i, p := range q {
		out[i] = p.Scale(float64(w), float64(h))
	}
	return out
}

// Normalize converts a pixel quad into normalized space for a w x h image.
func (q Quad) Normalize(w, h int) Quad {
	if w <= 0 || h <= 0 {
		return q
	}
	var out Quad
	for i, p := range q {
		out[i] = p.Scale(1/float64(w), 1/float64(h))
	}
	return out
}

// Offset returns q translated by d.
func (q Quad) Offset(d Point) Quad {
	var out Quad
	for i, p := range q {
		out[i] = p.Add(d)
	}
	return out
}

// Validate checks that q can be rectified. The returned error wraps
// ErrDegenerateQuad.
func Validate(q Quad) error {
	for i, p := range q {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: corner %d is not finite", ErrDegenerateQuad, i)
		}
	}

	box := q.Bounds()
	diag := math.Hypot(box.Width(), box.Height())
	if diag == 0 {
		return fmt.Errorf("%w: all corners coincide", ErrDegenerateQuad)
	}

	edges := q.edges()
	longest := 0.0
	for i, e := range edges {
		if e.Norm() <= diag*minEdgeFactor {
			return fmt.Errorf("%w: edge %d has zero length", ErrDegenerateQuad, i)
		}
		longest = max(longest, e.Norm())
	}

	for i := range 4 {
		prev := edges[(i+3)%4]
		next := edges[i]
		sine := Cross(prev, next) / (prev.Norm() * next.Norm())
		if math.Abs(sine) < MinCornerSine {
			return fmt.Errorf("%w: edges meeting at corner %d are parallel", ErrDegenerateQuad, i)
		}
	}

	area := q.Area()
	if area < math.Max(MinAreaRatio*box.Area(), absAreaEps) {
		return fmt.Errorf("%w: area %.3g is too small", ErrDegenerateQuad, area)
	}
	// Axis-aligned slivers fill their bounding box; measure them against
	// their longest edge instead.
	if area < MinAreaRatio*longest*longest {
		return fmt.Errorf("%w: quad is too thin (area %.3g, longest edge %.3g)", ErrDegenerateQuad, area, longest)
	}

	if !q.IsConvex() {
		return fmt.Errorf("%w: corners are self-intersecting or concave", ErrDegenerateQuad)
	}
	return nil
}

// edges returns edge vectors; edge i runs from corner i to corner i+1.
func (q Quad) edges() [4]Point {
	var e [4]Point
	for i := range 4 {
		e[i] = q[(i+1)%4].Sub(q[i])
	}
	return e
}

// BoundingDimensions returns the rectified output size for q: the longer of
// the top and bottom edges as width and the longer of the left and right
// edges as height.
func BoundingDimensions(q Quad) (width, height float64) {
	top := Distance(q[TopLeft], q[TopRight])
	bottom := Distance(q[BottomLeft], q[BottomRight])
	left := Distance(q[TopLeft], q[BottomLeft])
	right := Distance(q[TopRight], q[BottomRight])
	return math.Max(top, bottom), math.Max(left, right)
}
