package rectify

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularTransform is returned when no perspective transform exists for
// the given correspondences.
var ErrSingularTransform = errors.New("singular transform")

// Matrix is a row-major 3x3 homography.
type Matrix [9]float64

// Identity returns the identity homography.
func Identity() Matrix { return Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1} }

// At returns the entry at row r, column c.
func (m Matrix) At(r, c int) float64 { return m[r*3+c] }

// Apply maps (x, y) through m. Points that map to infinity come back as NaN.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	w := m[6]*x + m[7]*y + m[8]
	if w == 0 {
		return math.NaN(), math.NaN()
	}
	return (m[0]*x + m[1]*y + m[2]) / w, (m[3]*x + m[4]*y + m[5]) / w
}

// ApplyPoint maps p through m.
func (m Matrix) ApplyPoint(p geometry.Point) geometry.Point {
	x, y := m.Apply(p.X, p.Y)
	return geometry.Point{X: x, Y: y}
}

// ApplyQuad maps every corner of q through m.
func (m Matrix) ApplyQuad(q geometry.Quad) geometry.Quad {
	var out geometry.Quad
	for i, p := range q {
		out[i] = m.ApplyPoint(p)
	}
	return out
}

// Mul returns m * n, so that (m*n).Apply(p) == m.Apply(n.Apply(p)).
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for r := range 3 {
		for c := range 3 {
			var s float64
			for k := range 3 {
				s += m[r*3+k] * n[k*3+c]
			}
			out[r*3+c] = s
		}
	}
	return out
}

// Det returns the determinant of m.
func (m Matrix) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Normalized scales m so that its bottom-right entry is 1.
func (m Matrix) Normalized() Matrix {
	if math.Abs(m[8]) < 1e-15 {
		return m
	}
	var out Matrix
	for i, v := range m {
		out[i] = v / m[8]
	}
	return out
}

// Inverse returns the inverse homography.
func (m Matrix) Inverse() (Matrix, error) {
	d := mat.NewDense(3, 3, m[:])
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrSingularTransform, err)
	}
	var out Matrix
	for r := range 3 {
		for c := range 3 {
			out[r*3+c] = inv.At(r, c)
		}
	}
	return out.Normalized(), nil
}

// IsFinite reports whether all entries are finite numbers.
func (m Matrix) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
