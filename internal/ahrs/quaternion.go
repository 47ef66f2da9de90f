// Package ahrs fuses the controller's accelerometer, gyroscope and
// magnetometer samples into an absolute orientation estimate using a
// Madgwick gradient-descent filter.
package ahrs

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Quaternion is a unit orientation quaternion (W scalar part first).
type Quaternion struct {
	W, X, Y, Z float64
}

// Identity returns the no-rotation quaternion.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

// Mul returns the Hamilton product q*r.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Conj returns the conjugate of q.
func (q Quaternion) Conj() Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Norm returns the Euclidean norm of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalized returns q scaled to unit norm. The zero quaternion is
// returned unchanged.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return q
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Rotate applies the rotation represented by q to v.
func (q Quaternion) Rotate(v r3.Vec) r3.Vec {
	p := Quaternion{X: v.X, Y: v.Y, Z: v.Z}
	r := q.Mul(p).Mul(q.Conj())
	return r3.Vec{X: r.X, Y: r.Y, Z: r.Z}
}

// Euler converts q to intrinsic roll, pitch, yaw angles in radians.
// Pitch is doubled to cover the full hemisphere the way the controller
// firmware reports it.
func (q Quaternion) Euler() (roll, pitch, yaw float64) {
	t0 := 2 * (q.W*q.X + q.Y*q.Z)
	t1 := 1 - 2*(q.X*q.X+q.Y*q.Y)
	roll = math.Atan2(t0, t1)

	t2 := 2 * (q.W*q.Y - q.Z*q.X)
	t2 = math.Max(-1, math.Min(1, t2))
	pitch = math.Asin(t2) * 2

	t3 := 2 * (q.W*q.Z + q.X*q.Y)
	t4 := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	yaw = math.Atan2(t3, t4)
	return roll, pitch, yaw
}
