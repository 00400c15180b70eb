package features

import (
	"image"
	"math"
	"math/rand/v2"
)

const (
	descriptorBits  = 256
	descriptorBytes = descriptorBits / 8

	// patternRadius bounds every sampling offset; rotated offsets stay below
	// patternRadius*sqrt(2) < borderWidth.
	patternRadius = 13
	patternSeed   = 0x5eed0fb12ef
)

// borderWidth keeps orientation patches and rotated BRIEF pairs inside the level.
const borderWidth = 20

// briefPair is one intensity comparison: (x1, y1) < (x2, y2).
type briefPair struct{ x1, y1, x2, y2 float64 }

// briefPattern is generated once from a fixed seed so descriptors are stable
// across runs and processes.
var briefPattern = generatePattern(patternSeed)

func generatePattern(seed uint64) [descriptorBits]briefPair {
	rng := rand.New(rand.NewPCG(seed, seed>>7)) //nolint:gosec // G404: deterministic sampling pattern
	sigma := float64(2*halfPatch+1) / 5
	sample := func() float64 {
		for {
			v := math.Round(rng.NormFloat64() * sigma)
			if math.Abs(v) <= patternRadius {
				return v
			}
		}
	}

	var pattern [descriptorBits]briefPair
	for i := range pattern {
		for {
			p := briefPair{sample(), sample(), sample(), sample()}
			if p.x1 != p.x2 || p.y1 != p.y2 {
				pattern[i] = p
				break
			}
		}
	}
	return pattern
}

// computeBRIEF writes the steered 256-bit descriptor of (x, y) into dst.
// Bit k of byte j holds comparison 8*j+k.
func computeBRIEF(smoothed *image.Gray, x, y int, angle float64, dst []byte) {
	sin, cos := math.Sincos(angle)
	w, h := smoothed.Rect.Dx(), smoothed.Rect.Dy()
	at := func(px, py float64) uint8 {
		ix := x + int(math.Round(px*cos-py*sin))
		iy := y + int(math.Round(px*sin+py*cos))
		ix = min(max(ix, 0), w-1)
		iy = min(max(iy, 0), h-1)
		return smoothed.Pix[iy*smoothed.Stride+ix]
	}

	clear(dst[:descriptorBytes])
	for i, p := range briefPattern {
		if at(p.x1, p.y1) < at(p.x2, p.y2) {
			dst[i/8] |= 1 << (i % 8)
		}
	}
}
