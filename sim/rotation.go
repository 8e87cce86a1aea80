package sim

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rotation is a 3x3 rotation matrix in row major order.
// r[3*row + col] is the element in the given row and column.
type Rotation [9]float64

// Quaternion is a rotation quaternion using the Hamilton convention.
// Real holds the scalar part; Imag, Jmag and Kmag hold x, y and z.
type Quaternion = quat.Number

// smallAngle is the rotation angle below which the exponential map falls
// back to its first order expansion.
const smallAngle = 1e-10

// IdentityRotation returns the identity rotation.
func IdentityRotation() Rotation {
	return Rotation{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// At returns the element at row i, column j.
func (r Rotation) At(i, j int) float64 {
	return r[3*i+j]
}

// Apply rotates v.
func (r Rotation) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

// Transpose returns the inverse rotation.
func (r Rotation) Transpose() Rotation {
	return Rotation{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// Mul returns r*o (o applied first).
func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r[3*i]*o[j] + r[3*i+1]*o[3+j] + r[3*i+2]*o[6+j]
		}
	}
	return out
}

// Det returns the determinant of r.
func (r Rotation) Det() float64 {
	return r[0]*(r[4]*r[8]-r[5]*r[7]) -
		r[1]*(r[3]*r[8]-r[5]*r[6]) +
		r[2]*(r[3]*r[7]-r[4]*r[6])
}

// OrthogonalityError returns the Frobenius norm of RᵀR - I.
func (r Rotation) OrthogonalityError() float64 {
	p := r.Transpose().Mul(r)
	id := IdentityRotation()
	sum := 0.0
	for i := range p {
		d := p[i] - id[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Angle returns the rotation angle of r in radians, in [0, π].
// It uses atan2 on the skew and symmetric parts so it stays accurate near 0.
func (r Rotation) Angle() float64 {
	sx := r[7] - r[5]
	sy := r[2] - r[6]
	sz := r[3] - r[1]
	sin := 0.5 * math.Sqrt(sx*sx+sy*sy+sz*sz)
	cos := 0.5 * (r[0] + r[4] + r[8] - 1)
	return math.Atan2(sin, cos)
}

// Exp maps an axis-angle vector (direction = axis, norm = angle in radians)
// onto the rotation group using Rodrigues' formula.
func Exp(phi r3.Vec) Rotation {
	theta := r3.Norm(phi)
	// K is the skew-symmetric cross product matrix of phi.
	k := Rotation{
		0, -phi.Z, phi.Y,
		phi.Z, 0, -phi.X,
		-phi.Y, phi.X, 0,
	}
	kk := k.Mul(k)

	var a, b float64
	if theta < smallAngle {
		a, b = 1, 0.5
	} else {
		a = math.Sin(theta) / theta
		b = (1 - math.Cos(theta)) / (theta * theta)
	}

	out := IdentityRotation()
	for i := range out {
		out[i] += a*k[i] + b*kk[i]
	}
	return out
}

// AxisAngle returns the axis-angle vector of q.
func AxisAngle(q Quaternion) r3.Vec {
	q = NormalizeQuat(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	s := r3.Norm(v)
	if s < smallAngle {
		return r3.Scale(2, v)
	}
	theta := 2 * math.Atan2(s, q.Real)
	return r3.Scale(theta/s, v)
}

// QuatFromAxisAngle returns the unit quaternion for an axis-angle vector.
func QuatFromAxisAngle(phi r3.Vec) Quaternion {
	theta := r3.Norm(phi)
	if theta < smallAngle {
		return NormalizeQuat(Quaternion{Real: 1, Imag: phi.X / 2, Jmag: phi.Y / 2, Kmag: phi.Z / 2})
	}
	s := math.Sin(theta/2) / theta
	return Quaternion{Real: math.Cos(theta / 2), Imag: phi.X * s, Jmag: phi.Y * s, Kmag: phi.Z * s}
}

// NormalizeQuat scales q to unit norm.
func NormalizeQuat(q Quaternion) Quaternion {
	n := quat.Abs(q)
	if n == 0 {
		return q
	}
	return quat.Scale(1/n, q)
}

// QuatToRotation converts a unit quaternion to a rotation matrix such that
// R·v equals the vector part of q ⊗ v ⊗ q*.
func QuatToRotation(q Quaternion) Rotation {
	q = NormalizeQuat(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Rotation{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	}
}

// RotationToQuat converts a rotation matrix to a unit quaternion with a
// non-negative scalar part.
// reference: http://www.euclideanspace.com/maths/geometry/rotations/conversions/matrixToQuaternion/index.htm
func RotationToQuat(r Rotation) Quaternion {
	var q Quaternion
	if tr := r[0] + r[4] + r[8]; tr > 0 {
		s := 2 * math.Sqrt(tr+1)
		q = Quaternion{Real: s / 4, Imag: (r[7] - r[5]) / s, Jmag: (r[2] - r[6]) / s, Kmag: (r[3] - r[1]) / s}
	} else if r[0] > r[4] && r[0] > r[8] {
		s := 2 * math.Sqrt(1+r[0]-r[4]-r[8])
		q = Quaternion{Real: (r[7] - r[5]) / s, Imag: s / 4, Jmag: (r[1] + r[3]) / s, Kmag: (r[2] + r[6]) / s}
	} else if r[4] > r[8] {
		s := 2 * math.Sqrt(1+r[4]-r[0]-r[8])
		q = Quaternion{Real: (r[2] - r[6]) / s, Imag: (r[1] + r[3]) / s, Jmag: s / 4, Kmag: (r[5] + r[7]) / s}
	} else {
		s := 2 * math.Sqrt(1+r[8]-r[0]-r[4])
		q = Quaternion{Real: (r[3] - r[1]) / s, Imag: (r[2] + r[6]) / s, Jmag: (r[5] + r[7]) / s, Kmag: s / 4}
	}

	q = NormalizeQuat(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// QuatXYZW returns q as [x, y, z, w].
func QuatXYZW(q Quaternion) [4]float64 {
	return [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real}
}

// QuatFromXYZW builds a quaternion from the first four values of v,
// ordered [x, y, z, w].
func QuatFromXYZW(v []float64) Quaternion {
	return Quaternion{Real: v[3], Imag: v[0], Jmag: v[1], Kmag: v[2]}
}

// QuatsToRotations converts a flat (batch, 4) xyzw buffer into a flat
// (batch, 3, 3) row major buffer.
func QuatsToRotations(q []float64) []float64 {
	n := len(q) / 4
	out := make([]float64, 9*n)
	for i := 0; i < n; i++ {
		r := QuatToRotation(QuatFromXYZW(q[4*i:]))
		copy(out[9*i:], r[:])
	}
	return out
}

// RotationsToQuats converts a flat (batch, 3, 3) buffer into a flat
// (batch, 4) xyzw buffer.
func RotationsToQuats(m []float64) []float64 {
	n := len(m) / 9
	out := make([]float64, 4*n)
	for i := 0; i < n; i++ {
		var r Rotation
		copy(r[:], m[9*i:9*i+9])
		v := QuatXYZW(RotationToQuat(r))
		copy(out[4*i:], v[:])
	}
	return out
}
