// Package calibration averages repeated orientation captures into a single
// stable calibration pose.
package calibration

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// degenerateNorm is the sum length below which averaging falls back to the
// first sample.
const degenerateNorm = 1e-9

// Quaternion is an orientation (x, y, z, w) with w the scalar part. Producers
// keep it unit length.
type Quaternion struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

// Identity returns the identity rotation (0, 0, 0, 1).
func Identity() Quaternion { return Quaternion{W: 1} }

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Norm returns the Euclidean length of q.
func (q Quaternion) Norm() float64 { return quat.Abs(q.number()) }

// Normalize returns q scaled to unit length. A zero quaternion becomes the
// identity.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n < degenerateNorm || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity()
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// Negate returns -q, which represents the same rotation.
func (q Quaternion) Negate() Quaternion { return fromNumber(quat.Scale(-1, q.number())) }

// Dot returns the 4D dot product of a and b.
func Dot(a, b Quaternion) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z + a.W*b.W
}

// Mul returns the Hamilton product a*b (apply b, then a).
func Mul(a, b Quaternion) Quaternion { return fromNumber(quat.Mul(a.number(), b.number())) }

// Conj returns the conjugate of q, the inverse rotation for unit q.
func (q Quaternion) Conj() Quaternion { return fromNumber(quat.Conj(q.number())) }

// Angle returns the rotation angle in radians, in [0, pi], between the
// orientations a and b.
func Angle(a, b Quaternion) float64 {
	r := Mul(a.Normalize().Conj(), b.Normalize())
	v := math.Sqrt(r.X*r.X + r.Y*r.Y + r.Z*r.Z)
	return 2 * math.Atan2(v, math.Abs(r.W))
}

// FromAxisAngle builds the unit quaternion rotating by angle radians about axis.
func FromAxisAngle(ax, ay, az, angle float64) Quaternion {
	n := math.Sqrt(ax*ax + ay*ay + az*az)
	if n < degenerateNorm {
		return Identity()
	}
	s, c := math.Sincos(angle / 2)
	return Quaternion{X: ax / n * s, Y: ay / n * s, Z: az / n * s, W: c}
}

// Average combines samples by normalized summation after flipping each
// sample into the hemisphere of the first one. It returns the identity for
// no samples and the normalized first sample when the sum degenerates.
func Average(samples []Quaternion) Quaternion {
	if len(samples) == 0 {
		return Identity()
	}
	ref := samples[0]
	var sum quat.Number
	for _, q := range samples {
		if Dot(q, ref) < 0 {
			q = q.Negate()
		}
		sum = quat.Add(sum, q.number())
	}
	if n := quat.Abs(sum); n < degenerateNorm || math.IsNaN(n) {
		return ref.Normalize()
	}
	return fromNumber(sum).Normalize()
}
