package features

import "image"

const (
	harrisBlock = 7
	harrisK     = 0.04
)

// harrisResponse computes det(M) - k*trace(M)^2 of the structure tensor
// summed over a 7x7 block of Sobel gradients centred on (x, y).
func harrisResponse(g *image.Gray, x, y int) float64 {
	const r = harrisBlock / 2
	const scale = 1.0 / (4 * harrisBlock * 255)
	pix, s := g.Pix, g.Stride

	var a, b, c float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			i := (y+dy)*s + (x + dx)
			ix := float64(int(pix[i-s+1])+2*int(pix[i+1])+int(pix[i+s+1])-
				int(pix[i-s-1])-2*int(pix[i-1])-int(pix[i+s-1])) * scale
			iy := float64(int(pix[i+s-1])+2*int(pix[i+s])+int(pix[i+s+1])-
				int(pix[i-s-1])-2*int(pix[i-s])-int(pix[i-s+1])) * scale
			a += ix * ix
			b += iy * iy
			c += ix * iy
		}
	}
	return a*b - c*c - harrisK*(a+b)*(a+b)
}
