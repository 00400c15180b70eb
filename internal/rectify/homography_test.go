package rectify

import (
	"errors"
	"math"
	"testing"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
)

func abs(v float64) float64 { return math.Abs(v) }

// TestHomographyFromPoints_Identity tests the degenerate identity case.
func TestHomographyFromPoints_Identity(t *testing.T) {
	p := [4]geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

	h, err := HomographyFromPoints(p, p)
	if err != nil {
		t.Fatalf("Expected homography computation to succeed: %v", err)
	}
	want := Identity()
	for i := range h {
		if abs(h[i]-want[i]) > 1e-9 {
			t.Fatalf("Expected identity matrix, got %v", h)
		}
	}
}

// TestComputeHomography_MapsCorners checks that every source corner lands on
// the matching output corner.
func TestComputeHomography_MapsCorners(t *testing.T) {
	src := geometry.NewQuad(geometry.Pt(12, 30), geometry.Pt(180, 8), geometry.Pt(170, 150), geometry.Pt(25, 120))
	h, err := ComputeHomography(src, 160, 120)
	if err != nil {
		t.Fatalf("ComputeHomography failed: %v", err)
	}

	want := [4]geometry.Point{{X: 0, Y: 0}, {X: 160, Y: 0}, {X: 160, Y: 120}, {X: 0, Y: 120}}
	for i, p := range src {
		got := h.ApplyPoint(p)
		if geometry.Distance(got, want[i]) > 1e-6 {
			t.Errorf("corner %d: got %v, want %v", i, got, want[i])
		}
	}
}

func TestComputeHomography_ZeroOutput(t *testing.T) {
	src := geometry.Rect(0, 0, 10, 10)
	if _, err := ComputeHomography(src, 0.2, 10); !errors.Is(err, geometry.ErrDegenerateQuad) {
		t.Fatalf("expected ErrDegenerateQuad, got %v", err)
	}
}

func TestHomographyFromPoints_Collinear(t *testing.T) {
	p := [4]geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	q := [4]geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	if _, err := HomographyFromPoints(p, q); !errors.Is(err, ErrSingularTransform) {
		t.Fatalf("expected ErrSingularTransform, got %v", err)
	}
}

// TestSolve8x8 tests the 8x8 linear system solver.
func TestSolve8x8(t *testing.T) {
	a := [8][8]float64{}
	b := [8]float64{}
	for i := range 8 {
		a[i][i] = 1.0
		b[i] = float64(i + 1)
	}

	x, ok := solve8x8(a, b)
	if !ok {
		t.Fatal("Expected solve to succeed")
	}
	for i := range 8 {
		if abs(x[i]-float64(i+1)) > 1e-9 {
			t.Errorf("x[%d] = %f, want %d", i, x[i], i+1)
		}
	}

	// Row swaps are needed when the leading entry is zero.
	a = [8][8]float64{}
	for i := range 8 {
		a[i][(i+1)%8] = 2
	}
	x, ok = solve8x8(a, b)
	if !ok {
		t.Fatal("Expected permuted solve to succeed")
	}
	for i := range 8 {
		if abs(2*x[(i+1)%8]-b[i]) > 1e-9 {
			t.Errorf("row %d not satisfied", i)
		}
	}

	// Singular matrix
	if _, ok := solve8x8([8][8]float64{}, b); ok {
		t.Error("Expected singular system to fail")
	}
}

func TestFitHomography_RecoversExactTransform(t *testing.T) {
	truth := Matrix{0.9, 0.1, 12, -0.05, 1.1, -7, 0.0004, -0.0002, 1}
	var src, dst []geometry.Point
	for y := 0.0; y <= 200; y += 40 {
		for x := 0.0; x <= 300; x += 60 {
			p := geometry.Pt(x, y)
			src = append(src, p)
			dst = append(dst, truth.ApplyPoint(p))
		}
	}

	h, err := FitHomography(src, dst)
	if err != nil {
		t.Fatalf("FitHomography failed: %v", err)
	}
	for i, p := range src {
		if d := geometry.Distance(h.ApplyPoint(p), dst[i]); d > 1e-6 {
			t.Fatalf("point %d reprojects %.3g px off", i, d)
		}
	}
}

func TestFitHomography_TooFewPoints(t *testing.T) {
	pts := []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	if _, err := FitHomography(pts, pts); !errors.Is(err, ErrSingularTransform) {
		t.Fatalf("expected ErrSingularTransform, got %v", err)
	}
	same := []geometry.Point{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}
	if _, err := FitHomography(same, same); !errors.Is(err, ErrSingularTransform) {
		t.Fatalf("expected ErrSingularTransform for coincident points, got %v", err)
	}
}
