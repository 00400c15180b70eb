package calibration

import (
	"math"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func assertQuatEqual(t *testing.T, want, got Quaternion) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps)
	assert.InDelta(t, want.Y, got.Y, eps)
	assert.InDelta(t, want.Z, got.Z, eps)
	assert.InDelta(t, want.W, got.W, eps)
}

func TestAverage_Identities(t *testing.T) {
	q := FromAxisAngle(1, 2, 3, 0.7)

	assert.Equal(t, Quaternion{X: 0, Y: 0, Z: 0, W: 1}, Average(nil))
	assertQuatEqual(t, q, Average([]Quaternion{q}))
	assertQuatEqual(t, q, Average([]Quaternion{q, q}))
	assertQuatEqual(t, q, Average([]Quaternion{q, q.Negate()}))
}

func TestAverage_NormalizesInput(t *testing.T) {
	q := Quaternion{X: 0, Y: 0, Z: 2, W: 0}
	assertQuatEqual(t, Quaternion{Z: 1}, Average([]Quaternion{q}))
}

func TestAverage_DegenerateSumFallsBack(t *testing.T) {
	// All-zero samples sum to nothing; the normalized first sample is the identity.
	zero := Quaternion{}
	assert.Equal(t, Identity(), Average([]Quaternion{zero, zero}))
}

func TestAverage_SymmetricJitter(t *testing.T) {
	base := FromAxisAngle(0, 1, 0, 1.0)
	left := Mul(base, FromAxisAngle(1, 0, 0, 0.05))
	right := Mul(base, FromAxisAngle(1, 0, 0, -0.05))

	avg := Average([]Quaternion{left, right.Negate()})
	assert.Less(t, Angle(avg, base), 1e-6)
}

func TestAngle_EqualOrientations(t *testing.T) {
	for _, q := range []Quaternion{
		Identity(),
		FromAxisAngle(1, 2, 3, 0.7),
		FromAxisAngle(0, 1, 0, 2.9),
		{X: 0.1, Y: -0.2, Z: 0.3, W: 0.9},
	} {
		assert.Less(t, Angle(q, q), 1e-12, "%+v", q)
		assert.Less(t, Angle(q, q.Negate()), 1e-12, "%+v", q)
	}
	assert.InDelta(t, 1e-6, Angle(Identity(), FromAxisAngle(0, 0, 1, 1e-6)), 1e-15)
}

func TestAngle(t *testing.T) {
	a := Identity()
	b := FromAxisAngle(0, 0, 1, math.Pi/2)
	assert.InDelta(t, math.Pi/2, Angle(a, b), 1e-12)
	assert.InDelta(t, 0, Angle(b, b.Negate()), 1e-12)
	assert.InDelta(t, 1, b.Norm(), 1e-12)
	assertQuatEqual(t, Identity(), Mul(b, b.Conj()))
}

func TestNormalize_Zero(t *testing.T) {
	assert.Equal(t, Identity(), Quaternion{}.Normalize())
	assert.Equal(t, Identity(), FromAxisAngle(0, 0, 0, 1))
}

func genUnitQuaternion() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-1, 1),
		gen.Float64Range(-1, 1),
		gen.Float64Range(-1, 1),
		gen.Float64Range(0.01, math.Pi),
	).Map(func(v []interface{}) Quaternion {
		return FromAxisAngle(v[0].(float64), v[1].(float64), v[2].(float64)+2, v[3].(float64))
	})
}

func TestAverage_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("average is unit length", prop.ForAll(
		func(a, b, c Quaternion) bool {
			return math.Abs(Average([]Quaternion{a, b, c}).Norm()-1) < 1e-9
		},
		genUnitQuaternion(), genUnitQuaternion(), genUnitQuaternion(),
	))

	properties.Property("sign of later samples does not matter", prop.ForAll(
		func(a, b Quaternion) bool {
			p := Average([]Quaternion{a, b})
			q := Average([]Quaternion{a, b.Negate()})
			return Angle(p, q) < 1e-6
		},
		genUnitQuaternion(), genUnitQuaternion(),
	))

	properties.Property("average of repeated samples is the sample", prop.ForAll(
		func(q Quaternion, n int) bool {
			samples := make([]Quaternion, n)
			for i := range samples {
				if i%2 == 1 {
					samples[i] = q.Negate()
				} else {
					samples[i] = q
				}
			}
			return Angle(Average(samples), q) < 1e-6
		},
		genUnitQuaternion(), gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestCapture(t *testing.T) {
	c := NewCapture()
	assert.Zero(t, c.Len())
	assert.Equal(t, Identity(), c.Average())
	assert.Zero(t, c.Spread())

	base := FromAxisAngle(0, 0, 1, 0.4)
	c.Add(Mul(base, FromAxisAngle(1, 0, 0, 0.02)))
	c.Add(Mul(base, FromAxisAngle(1, 0, 0, -0.02)))
	c.Add(Quaternion{X: base.X * 3, Y: base.Y * 3, Z: base.Z * 3, W: base.W * 3})

	require.Equal(t, 3, c.Len())
	for _, s := range c.Samples() {
		assert.InDelta(t, 1, s.Norm(), 1e-12)
	}
	assert.Less(t, Angle(c.Average(), base), 1e-3)
	assert.InDelta(t, 0.02, c.Spread(), 2e-3)

	c.Reset()
	assert.Zero(t, c.Len())
}

func TestCapture_Concurrent(t *testing.T) {
	c := NewCapture()
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 20 {
				c.Add(Identity())
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 200, c.Len())
	assertQuatEqual(t, Identity(), c.Average())
}
