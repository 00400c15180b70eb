package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHamming(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	assert.Equal(t, 0, hamming(a, b))

	b[0] = 0xFF
	b[31] = 0x01
	assert.Equal(t, 9, hamming(a, b))

	// Lengths that are not a multiple of 8 use the byte tail.
	assert.Equal(t, 3, hamming([]byte{0x07, 0, 0}, []byte{0, 0, 0}))
	assert.Equal(t, 10, hamming([]byte{1, 2, 3, 4, 5, 6, 7, 8, 0xFF, 0x03}, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0}))
}

func row(bitsSet ...int) []byte {
	r := make([]byte, 4)
	for _, b := range bitsSet {
		r[b/8] |= 1 << (b % 8)
	}
	return r
}

func TestKnn2(t *testing.T) {
	train := append(append(append([]byte(nil),
		row()...),
		row(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)...),
		row(20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31)...)

	tests := []struct {
		name      string
		query     []byte
		maxDist   int
		wantTrain int // -1 for rejected
	}{
		{"exact", row(), 64, 0},
		{"close to second row", row(0, 1, 2, 3, 4, 5, 6, 7, 8), 64, 1},
		{"ambiguous between rows", row(0, 1, 2, 3, 4), 64, -1},
		{"over distance cap", row(), -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := knn2(tt.query, 1, train, 3, 4, tt.maxDist, 0.75)
			if tt.wantTrain < 0 {
				assert.Empty(t, got)
				return
			}
			if assert.Len(t, got, 1) {
				assert.Equal(t, tt.wantTrain, got[0].train)
				assert.Equal(t, 0, got[0].query)
			}
		})
	}
}

func TestKnn2_SingleTrainRowSkipsRatio(t *testing.T) {
	got := knn2(row(3), 1, row(1, 3), 1, 4, 64, 0.75)
	if assert.Len(t, got, 1) {
		assert.Equal(t, 1, got[0].distance)
	}
}
