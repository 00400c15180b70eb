package rectify

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"gonum.org/v1/gonum/mat"
)

// ComputeHomography returns the homography mapping src (TL, TR, BR, BL) onto
// the rectangle (0,0), (dstW,0), (dstW,dstH), (0,dstH).
func ComputeHomography(src geometry.Quad, dstW, dstH float64) (Matrix, error) {
	if math.Round(dstW) <= 0 || math.Round(dstH) <= 0 {
		return Matrix{}, fmt.Errorf("%w: output size %.2fx%.2f rounds to zero", geometry.ErrDegenerateQuad, dstW, dstH)
	}
	dst := [4]geometry.Point{{X: 0, Y: 0}, {X: dstW, Y: 0}, {X: dstW, Y: dstH}, {X: 0, Y: dstH}}
	return HomographyFromPoints(src, dst)
}

// HomographyFromPoints computes H mapping p[i] -> q[i] from exactly four
// correspondences.
func HomographyFromPoints(p, q [4]geometry.Point) (Matrix, error) {
	// Build 8x8 system A*h = b for the 8 unknowns (h00..h21), h22=1.
	var a [8][8]float64
	var b [8]float64
	for i := range 4 {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		r := 2 * i
		// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
		a[r] = [8]float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x}
		b[r] = x
		// y' = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
		a[r+1] = [8]float64{0, 0, 0, X, Y, 1, -X * y, -Y * y}
		b[r+1] = y
	}

	h, ok := solve8x8(a, b)
	if !ok {
		return Matrix{}, ErrSingularTransform
	}
	m := Matrix{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}
	if !m.IsFinite() || math.Abs(m.Det()) < 1e-12 {
		return Matrix{}, ErrSingularTransform
	}
	return m, nil
}

// FitHomography computes the least-squares homography mapping src[i] ->
// dst[i] over n >= 4 correspondences. Points are Hartley-normalized before
// solving.
func FitHomography(src, dst []geometry.Point) (Matrix, error) {
	n := len(src)
	if n < 4 || len(dst) != n {
		return Matrix{}, fmt.Errorf("%w: need at least 4 matching point pairs, got %d/%d", ErrSingularTransform, len(src), len(dst))
	}

	ts, ok := normalization(src)
	if !ok {
		return Matrix{}, ErrSingularTransform
	}
	td, ok := normalization(dst)
	if !ok {
		return Matrix{}, ErrSingularTransform
	}

	a := mat.NewDense(2*n, 8, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := range n {
		X, Y := ts.Apply(src[i].X, src[i].Y)
		x, y := td.Apply(dst[i].X, dst[i].Y)
		r := 2 * i
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrSingularTransform, err)
	}
	hn := Matrix{h.AtVec(0), h.AtVec(1), h.AtVec(2), h.AtVec(3), h.AtVec(4), h.AtVec(5), h.AtVec(6), h.AtVec(7), 1}

	tdInv, err := td.Inverse()
	if err != nil {
		return Matrix{}, err
	}
	m := tdInv.Mul(hn).Mul(ts).Normalized()
	if !m.IsFinite() {
		return Matrix{}, ErrSingularTransform
	}
	return m, nil
}

// normalization returns the similarity moving pts' centroid to the origin
// with mean distance sqrt(2).
func normalization(pts []geometry.Point) (Matrix, bool) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= float64(len(pts))
	if mean < 1e-12 {
		return Matrix{}, false
	}
	s := math.Sqrt2 / mean
	return Matrix{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1}, true
}

func solve8x8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	matrix := a
	vector := b

	// Gauss-Jordan elimination with partial pivoting.
	for i := range 8 {
		if !pivotAndNormalize(&matrix, &vector, i) {
			return [8]float64{}, false
		}
		eliminateColumn(&matrix, &vector, i)
	}
	return vector, true
}

func pivotAndNormalize(matrix *[8][8]float64, vector *[8]float64, col int) bool {
	pivotRow := findPivotRow(*matrix, col)
	if pivotRow == -1 {
		return false
	}
	if pivotRow != col {
		swapRows(matrix, vector, col, pivotRow)
	}
	normalizeRow(matrix, vector, col)
	return true
}

func findPivotRow(matrix [8][8]float64, col int) int {
	maxAbs := math.Abs(matrix[col][col])
	pivotRow := col
	for r := col + 1; r < 8; r++ {
		if v := math.Abs(matrix[r][col]); v > maxAbs {
			maxAbs = v
			pivotRow = r
		}
	}
	if maxAbs < 1e-12 {
		return -1
	}
	return pivotRow
}

func swapRows(matrix *[8][8]float64, vector *[8]float64, row1, row2 int) {
	matrix[row1], matrix[row2] = matrix[row2], matrix[row1]
	vector[row1], vector[row2] = vector[row2], vector[row1]
}

func normalizeRow(matrix *[8][8]float64, vector *[8]float64, row int) {
	div := matrix[row][row]
	for c := row; c < 8; c++ {
		matrix[row][c] /= div
	}
	vector[row] /= div
}

func eliminateColumn(matrix *[8][8]float64, vector *[8]float64, col int) {
	for r := range 8 {
		if r == col {
			continue
		}
		factor := matrix[r][col]
		if factor == 0 {
			continue
		}
		for c := col; c < 8; c++ {
			matrix[r][c] -= factor * matrix[col][c]
		}
		vector[r] -= factor * vector[col]
	}
}
