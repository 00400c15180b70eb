package features

import (
	"image"
	"math"
)

const halfPatch = 15

// umax[v] is the half-width of the circular patch at row offset v.
var umax = func() [halfPatch + 1]int {
	var u [halfPatch + 1]int
	for v := range halfPatch + 1 {
		u[v] = int(math.Sqrt(float64(halfPatch*halfPatch-v*v)) + 0.5)
	}
	return u
}()

// intensityCentroidAngle returns the direction from (x, y) to the intensity
// centroid of the surrounding circular patch.
func intensityCentroidAngle(g *image.Gray, x, y int) float64 {
	pix, s := g.Pix, g.Stride
	center := y*s + x

	var m01, m10 int
	for u := -halfPatch; u <= halfPatch; u++ {
		m10 += u * int(pix[center+u])
	}
	for v := 1; v <= halfPatch; v++ {
		var vSum int
		d := umax[v]
		for u := -d; u <= d; u++ {
			below := int(pix[center+v*s+u])
			above := int(pix[center-v*s+u])
			vSum += below - above
			m10 += u * (below + above)
		}
		m01 += v * vSum
	}
	return math.Atan2(float64(m01), float64(m10))
}
