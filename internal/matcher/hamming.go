package matcher

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// hamming returns the number of differing bits between equal-length a and b.
func hamming(a, b []byte) int {
	d := 0
	i := 0
	for ; i+8 <= len(a); i += 8 {
		d += bits.OnesCount64(binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:]))
	}
	for ; i < len(a); i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}

// pair links a query descriptor to its nearest train descriptor.
type pair struct {
	query, train int
	distance     int
}

// knn2 finds, for every query row, the nearest and second-nearest train rows
// by brute force and keeps those passing the distance cap and ratio test.
func knn2(query []byte, nq int, train []byte, nt, cols int, maxDist int, ratio float64) []pair {
	var out []pair
	for q := range nq {
		qd := query[q*cols : (q+1)*cols]
		best, second := math.MaxInt, math.MaxInt
		bestIdx := -1
		for t := range nt {
			d := hamming(qd, train[t*cols:(t+1)*cols])
			if d < best {
				second = best
				best, bestIdx = d, t
			} else if d < second {
				second = d
			}
		}
		if bestIdx < 0 || best > maxDist {
			continue
		}
		if second != math.MaxInt && float64(best) >= ratio*float64(second) {
			continue
		}
		out = append(out, pair{query: q, train: bestIdx, distance: best})
	}
	return out
}
