package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderCorners(t *testing.T) {
	want := NewQuad(Pt(10, 12), Pt(200, 8), Pt(210, 150), Pt(5, 160))

	perms := [][]Point{
		{want[0], want[1], want[2], want[3]},
		{want[2], want[0], want[3], want[1]},
		{want[3], want[2], want[1], want[0]},
	}
	for _, p := range perms {
		got, err := OrderCorners(p)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NoError(t, Validate(got))
	}
}

func TestOrderCorners_Errors(t *testing.T) {
	_, err := OrderCorners([]Point{{0, 0}, {1, 1}})
	assert.ErrorIs(t, err, ErrDegenerateQuad)

	// One point inside the triangle of the other three.
	_, err = OrderCorners([]Point{{0, 0}, {100, 0}, {0, 100}, {10, 10}})
	assert.ErrorIs(t, err, ErrDegenerateQuad)
}

func TestConvexHull_DropsInteriorAndDuplicates(t *testing.T) {
	pts := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}, {0, 0}}
	hull := ConvexHull(pts)
	assert.Len(t, hull, 4)
	assert.Positive(t, Quad{hull[0], hull[1], hull[2], hull[3]}.SignedArea())
}
