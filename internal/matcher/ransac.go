package matcher

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
)

const (
	sampleSize = 4
	// minTriangleArea below this (px^2) a sample triple counts as collinear.
	minTriangleArea = 0.5
)

type ransacParams struct {
	threshold     float64
	maxIterations int
	confidence    float64
	seed          uint64
}

type ransacResult struct {
	model   rectify.Matrix
	inliers []bool
	count   int
}

// findHomography robustly estimates H with dst ~ H(src). It returns a zero
// count when no non-degenerate sample produced a model.
func findHomography(ctx context.Context, src, dst []geometry.Point, p ransacParams) (ransacResult, error) {
	n := len(src)
	if n < sampleSize {
		return ransacResult{}, nil
	}
	rng := rand.New(rand.NewPCG(p.seed, uint64(n))) //nolint:gosec // G404: reproducible sampling
	thr2 := p.threshold * p.threshold

	best := ransacResult{}
	mask := make([]bool, n)
	limit := p.maxIterations
	var idx [sampleSize]int
	var s, d [4]geometry.Point

	for it := 0; it < limit; it++ {
		if err := ctx.Err(); err != nil {
			return ransacResult{}, err
		}
		drawSample(rng, n, &idx)
		for k, i := range idx {
			s[k], d[k] = src[i], dst[i]
		}
		if !goodSample(s, d) {
			continue
		}
		H, err := rectify.HomographyFromPoints(s, d)
		if err != nil {
			continue
		}
		count := scoreModel(H, src, dst, thr2, mask)
		if count > best.count {
			best = ransacResult{model: H, inliers: append([]bool(nil), mask...), count: count}
			limit = min(limit, adaptiveIterations(count, n, p.confidence, p.maxIterations))
		}
	}

	if best.count >= sampleSize {
		best = refine(best, src, dst, thr2)
	}
	return best, nil
}

// refine re-fits the model over its consensus set by least squares and keeps
// the result while it does not lose support.
func refine(best ransacResult, src, dst []geometry.Point, thr2 float64) ransacResult {
	mask := make([]bool, len(src))
	for range 3 {
		var s, d []geometry.Point
		for i, in := range best.inliers {
			if in {
				s = append(s, src[i])
				d = append(d, dst[i])
			}
		}
		H, err := rectify.FitHomography(s, d)
		if err != nil {
			return best
		}
		count := scoreModel(H, src, dst, thr2, mask)
		if count < best.count {
			return best
		}
		grew := count > best.count
		best = ransacResult{model: H, inliers: append([]bool(nil), mask...), count: count}
		if !grew {
			return best
		}
	}
	return best
}

func drawSample(rng *rand.Rand, n int, idx *[sampleSize]int) {
	for k := 0; k < sampleSize; {
		v := rng.IntN(n)
		dup := false
		for j := range k {
			if idx[j] == v {
				dup = true
				break
			}
		}
		if !dup {
			idx[k] = v
			k++
		}
	}
}

// goodSample rejects samples with a collinear triple in either image and
// samples whose triangles flip orientation between images, which no
// orientation-preserving homography can produce.
func goodSample(s, d [4]geometry.Point) bool {
	for _, tri := range [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}} {
		a := signedArea(s[tri[0]], s[tri[1]], s[tri[2]])
		b := signedArea(d[tri[0]], d[tri[1]], d[tri[2]])
		if math.Abs(a) < minTriangleArea || math.Abs(b) < minTriangleArea {
			return false
		}
		if (a > 0) != (b > 0) {
			return false
		}
	}
	return true
}

func signedArea(a, b, c geometry.Point) float64 {
	return 0.5 * geometry.Cross(b.Sub(a), c.Sub(a))
}

// scoreModel marks correspondences whose reprojection error is within the
// threshold and returns their count.
func scoreModel(H rectify.Matrix, src, dst []geometry.Point, thr2 float64, mask []bool) int {
	count := 0
	for i := range src {
		x, y := H.Apply(src[i].X, src[i].Y)
		dx, dy := x-dst[i].X, y-dst[i].Y
		in := dx*dx+dy*dy <= thr2 // NaN compares false
		mask[i] = in
		if in {
			count++
		}
	}
	return count
}

// adaptiveIterations returns how many samples are needed to draw one
// all-inlier sample with the given confidence.
func adaptiveIterations(inliers, n int, confidence float64, maxIter int) int {
	w := float64(inliers) / float64(n)
	pFail := 1 - math.Pow(w, sampleSize)
	if pFail <= 0 {
		return 1
	}
	if pFail >= 1 {
		return maxIter
	}
	k := math.Log(1-confidence) / math.Log(pFail)
	if k >= float64(maxIter) {
		return maxIter
	}
	return max(1, int(math.Ceil(k)))
}
