package features

import "image"

// circle holds the 16 Bresenham offsets of radius 3 in clockwise order
// starting at twelve o'clock.
var circle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastOffsets precomputes circle offsets into a Pix slice with the given stride.
func fastOffsets(stride int) [16]int {
	var offs [16]int
	for i, c := range circle {
		offs[i] = c[1]*stride + c[0]
	}
	return offs
}

// isFastCorner reports whether at least 9 contiguous circle pixels are all
// brighter than center+t or all darker than center-t.
func isFastCorner(pix []uint8, idx int, offs *[16]int, t int) bool {
	c := int(pix[idx])
	hi, lo := c+t, c-t

	// An arc of 9 always covers two of the four compass pixels.
	var nb, nd int
	for _, k := range [4]int{0, 4, 8, 12} {
		v := int(pix[idx+offs[k]])
		if v > hi {
			nb++
		} else if v < lo {
			nd++
		}
	}
	if nb < 2 && nd < 2 {
		return false
	}

	var bright, dark uint32
	for k := range 16 {
		v := int(pix[idx+offs[k]])
		if v > hi {
			bright |= 1 << k
		} else if v < lo {
			dark |= 1 << k
		}
	}
	return hasArc(bright, 9) || hasArc(dark, 9)
}

// hasArc reports whether the circular 16-bit mask holds n contiguous set bits.
func hasArc(mask uint32, n int) bool {
	if mask == 0 {
		return false
	}
	m := mask | mask<<16
	r := m
	for i := 1; i < n; i++ {
		r &= m >> i
	}
	return r != 0
}

// detectFast marks FAST-9 corners of g inside a border of b pixels.
func detectFast(g *image.Gray, t, b int, mask []bool) int {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	offs := fastOffsets(g.Stride)
	n := 0
	for y := b; y < h-b; y++ {
		row := y * g.Stride
		for x := b; x < w-b; x++ {
			if isFastCorner(g.Pix, row+x, &offs, t) {
				mask[y*w+x] = true
				n++
			}
		}
	}
	return n
}
