package features

import (
	"cmp"
	"image"
	"math"
	"slices"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/mempool"
	"github.com/MeKo-Tech/wallsight/internal/utils"
	"github.com/disintegration/imaging"
)

// ORB is an oriented FAST / rotated BRIEF detector. It holds only its
// configuration and is safe for concurrent use.
type ORB struct {
	cfg ORBConfig
}

// NewORB creates an ORB detector. Invalid settings fall back to defaults.
func NewORB(cfg ORBConfig) *ORB {
	if cfg.Validate() != nil {
		cfg = DefaultORBConfig()
	}
	return &ORB{cfg: cfg}
}

// Config returns the detector configuration.
func (o *ORB) Config() ORBConfig { return o.cfg }

// level is one octave of the scale pyramid.
type level struct {
	index    int
	gray     *image.Gray
	smoothed *image.Gray
	sx, sy   float64 // level -> level-0 coordinate scale
}

type candidate struct {
	kp   Keypoint
	desc [descriptorBytes]byte
	x, y int
}

// Detect runs the detector over img. Descriptors that exactly repeat the
// descriptor of a stronger keypoint are dropped.
func (o *ORB) Detect(img image.Image) Features {
	out := Features{DescriptorSize: descriptorBytes}
	if img == nil || img.Bounds().Empty() {
		return out
	}

	levels := o.buildPyramid(utils.ToGray(img))
	quotas := levelQuotas(o.cfg.MaxFeatures, o.cfg.ScaleFactor, len(levels))

	var cands []candidate
	carry := 0
	for i, lv := range levels {
		found := o.detectLevel(lv, quotas[i]+carry)
		carry = max(0, quotas[i]+carry-len(found))
		cands = append(cands, found...)
	}

	slices.SortStableFunc(cands, func(a, b candidate) int {
		if c := cmp.Compare(b.kp.Response, a.kp.Response); c != 0 {
			return c
		}
		if c := cmp.Compare(a.kp.Level, b.kp.Level); c != 0 {
			return c
		}
		if c := cmp.Compare(a.y, b.y); c != 0 {
			return c
		}
		return cmp.Compare(a.x, b.x)
	})

	seen := make(map[[descriptorBytes]byte]struct{}, len(cands))
	for _, c := range cands {
		if len(out.Keypoints) >= o.cfg.MaxFeatures {
			break
		}
		if _, dup := seen[c.desc]; dup {
			continue
		}
		seen[c.desc] = struct{}{}
		out.Keypoints = append(out.Keypoints, c.kp)
		out.Descriptors = append(out.Descriptors, c.desc[:]...)
	}
	return out
}

// buildPyramid downsamples g by ScaleFactor per level until a level becomes
// too small to hold a described patch.
func (o *ORB) buildPyramid(g *image.Gray) []level {
	w0, h0 := g.Rect.Dx(), g.Rect.Dy()
	minSide := 2*borderWidth + 1

	levels := make([]level, 0, o.cfg.Levels)
	for i := range o.cfg.Levels {
		s := math.Pow(o.cfg.ScaleFactor, float64(i))
		w := int(math.Round(float64(w0) / s))
		h := int(math.Round(float64(h0) / s))
		if w < minSide || h < minSide {
			break
		}
		lg := g
		if i > 0 {
			lg = utils.ToGray(imaging.Resize(g, w, h, imaging.Linear))
		}
		sm := lg
		if o.cfg.BlurSigma > 0 {
			sm = utils.ToGray(imaging.Blur(lg, o.cfg.BlurSigma))
		}
		levels = append(levels, level{
			index:    i,
			gray:     lg,
			smoothed: sm,
			sx:       float64(w0) / float64(w),
			sy:       float64(h0) / float64(h),
		})
	}
	return levels
}

// levelQuotas splits total across n levels in a geometric series so that
// finer levels, which cover more area, get more keypoints.
func levelQuotas(total int, scale float64, n int) []int {
	q := make([]int, n)
	if n == 0 {
		return q
	}
	f := 1 / scale
	per := float64(total) * (1 - f) / (1 - math.Pow(f, float64(n)))
	sum := 0
	for i := range n - 1 {
		q[i] = int(math.Round(per))
		sum += q[i]
		per *= f
	}
	q[n-1] = max(0, total-sum)
	return q
}

// detectLevel finds FAST corners, keeps local Harris maxima, and describes
// the strongest quota of them.
func (o *ORB) detectLevel(lv level, quota int) []candidate {
	if quota <= 0 {
		return nil
	}
	g := lv.gray
	w, h := g.Rect.Dx(), g.Rect.Dy()

	mask := mempool.GetBool(w * h)
	defer mempool.PutBool(mask)
	if detectFast(g, o.cfg.FastThreshold, borderWidth, mask) == 0 {
		return nil
	}

	score := mempool.GetFloat32(w * h)
	defer mempool.PutFloat32(score)
	for i := range score {
		score[i] = -math.MaxFloat32
	}
	for y := borderWidth; y < h-borderWidth; y++ {
		for x := borderWidth; x < w-borderWidth; x++ {
			if mask[y*w+x] {
				score[y*w+x] = float32(harrisResponse(g, x, y))
			}
		}
	}

	var found []candidate
	for y := borderWidth; y < h-borderWidth; y++ {
		for x := borderWidth; x < w-borderWidth; x++ {
			if !mask[y*w+x] || !isLocalMax(score, w, x, y) {
				continue
			}
			found = append(found, candidate{
				kp: Keypoint{Response: float64(score[y*w+x]), Level: lv.index},
				x:  x,
				y:  y,
			})
		}
	}

	slices.SortStableFunc(found, func(a, b candidate) int {
		return cmp.Compare(b.kp.Response, a.kp.Response)
	})
	if len(found) > quota {
		found = found[:quota]
	}

	for i := range found {
		c := &found[i]
		c.kp.Angle = intensityCentroidAngle(g, c.x, c.y)
		c.kp.Pt = geometry.Point{X: float64(c.x) * lv.sx, Y: float64(c.y) * lv.sy}
		c.kp.Size = float64(2*halfPatch+1) * lv.sx
		computeBRIEF(lv.smoothed, c.x, c.y, c.kp.Angle, c.desc[:])
	}
	return found
}

// isLocalMax applies 3x3 non-maximum suppression. Ties go to the first pixel
// in raster order.
func isLocalMax(score []float32, w, x, y int) bool {
	v := score[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := score[(y+dy)*w+x+dx]
			before := dy < 0 || (dy == 0 && dx < 0)
			if n > v || (before && n == v) {
				return false
			}
		}
	}
	return true
}
