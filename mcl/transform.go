package mcl

import "math"

// TransformPoint applies an affine transform to a point
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// NormalizeAngle wraps an angle in radians into [0, 2π).
func NormalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	// -tiny + 2π rounds to 2π
	if theta >= 2*math.Pi {
		theta = 0
	}
	return theta
}

// AngleDiff returns the signed shortest rotation from b to a, in (-π, π].
func AngleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	switch {
	case d > math.Pi:
		d -= 2 * math.Pi
	case d <= -math.Pi:
		d += 2 * math.Pi
	}
	return d
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// InvertMatrix computes the inverse of an affine transform
// Returns identity if matrix is singular (determinant ~= 0)
func InvertMatrix(m AffineMatrix) AffineMatrix {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-10 {
		return Identity()
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Ty - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Ty: (m.C*m.Tx - m.A*m.Ty) * invDet,
	}
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Rotation creates a rotation transform (angle in radians, around origin)
func Rotation(angle float64) AffineMatrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return AffineMatrix{A: cos, B: -sin, Tx: 0, C: sin, D: cos, Ty: 0}
}

// PoseMatrix returns the rigid transform that maps points from the pose's
// local frame into the frame the pose is expressed in.
func PoseMatrix(p Pose) AffineMatrix {
	m := Rotation(p.Theta)
	m.Tx, m.Ty = p.X, p.Y
	return m
}

// MatrixPose extracts the pose of a rigid transform. Theta is wrapped
// into [0, 2π).
func MatrixPose(m AffineMatrix) Pose {
	return Pose{X: m.Tx, Y: m.Ty, Theta: NormalizeAngle(math.Atan2(m.C, m.A))}
}

// YawQuaternion returns the (x, y, z, w) quaternion of a rotation about Z
func YawQuaternion(yaw float64) [4]float64 {
	return [4]float64{0, 0, math.Sin(yaw / 2), math.Cos(yaw / 2)}
}

// QuaternionYaw recovers the heading from an (x, y, z, w) quaternion
func QuaternionYaw(q [4]float64) float64 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}
