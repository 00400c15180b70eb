package geometry

import (
	"fmt"
	"sort"
)

// OrderCorners arranges four unordered corner taps into TL, TR, BR, BL order.
// The corners are walked along their convex hull starting from the one
// closest to the top-left of the image.
func OrderCorners(pts []Point) (Quad, error) {
	if len(pts) != 4 {
		return Quad{}, fmt.Errorf("%w: need 4 corners, got %d", ErrDegenerateQuad, len(pts))
	}
	hull := ConvexHull(pts)
	if len(hull) != 4 {
		return Quad{}, fmt.Errorf("%w: corners do not form a convex quadrilateral", ErrDegenerateQuad)
	}

	start := 0
	for i, p := range hull {
		if p.X+p.Y < hull[start].X+hull[start].Y {
			start = i
		}
	}

	var q Quad
	for i := range 4 {
		q[i] = hull[(start+i)%4]
	}
	return q, nil
}

// ConvexHull computes the convex hull of pts with the monotone chain
// algorithm. The hull has positive signed area, which on screen runs
// clockwise. Collinear points are dropped.
func ConvexHull(pts []Point) []Point {
	if len(pts) <= 1 {
		return append([]Point(nil), pts...)
	}
	p := append([]Point(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = dedupe(p)
	if len(p) <= 1 {
		return p
	}

	lower := make([]Point, 0, len(p))
	for _, pt := range p {
		for len(lower) >= 2 && cross3(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	upper := make([]Point, 0, len(p))
	for i := len(p) - 1; i >= 0; i-- {
		pt := p[i]
		for len(upper) >= 2 && cross3(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}

	hull := make([]Point, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull
}

func dedupe(p []Point) []Point {
	out := p[:0]
	for i, pt := range p {
		if i == 0 || pt != p[i-1] {
			out = append(out, pt)
		}
	}
	return out
}
