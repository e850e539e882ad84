package mcl

import (
	"math"
	"testing"
)

const epsilon = 1e-10

// almostEqual checks if two floats are equal within epsilon tolerance
func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// posesEqual compares positions directly and headings on the circle
func posesEqual(p1, p2 Pose) bool {
	return almostEqual(p1.X, p2.X) && almostEqual(p1.Y, p2.Y) &&
		math.Abs(AngleDiff(p1.Theta, p2.Theta)) < epsilon
}

func TestTransformPoint(t *testing.T) {
	tests := []struct {
		name   string
		point  Point
		matrix AffineMatrix
		want   Point
	}{
		{
			name:   "identity transform",
			point:  Point{X: 10, Y: 20},
			matrix: Identity(),
			want:   Point{X: 10, Y: 20},
		},
		{
			name:   "translation only",
			point:  Point{X: 5, Y: 5},
			matrix: Translation(10, 15),
			want:   Point{X: 15, Y: 20},
		},
		{
			name:   "90 degree rotation",
			point:  Point{X: 1, Y: 0},
			matrix: Rotation(math.Pi / 2),
			want:   Point{X: 0, Y: 1},
		},
		{
			name:   "pose frame",
			point:  Point{X: 1, Y: 0},
			matrix: PoseMatrix(Pose{X: 2, Y: 3, Theta: math.Pi}),
			want:   Point{X: 1, Y: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformPoint(tt.point, tt.matrix)
			if !almostEqual(got.X, tt.want.X) || !almostEqual(got.Y, tt.want.Y) {
				t.Errorf("TransformPoint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{2 * math.Pi, 0},
		{-math.Pi / 2, 3 * math.Pi / 2},
		{5 * math.Pi, math.Pi},
		{-7 * math.Pi / 2, math.Pi / 2},
		{-1e-18, 0},
	}
	for _, tt := range tests {
		got := NormalizeAngle(tt.in)
		if !almostEqual(got, tt.want) {
			t.Errorf("NormalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got < 0 || got >= 2*math.Pi {
			t.Errorf("NormalizeAngle(%v) = %v, outside [0, 2π)", tt.in, got)
		}
	}
}

func TestAngleDiff(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{0.5, 0.2, 0.3},
		{0.1, 2*math.Pi - 0.1, 0.2},
		{2*math.Pi - 0.1, 0.1, -0.2},
		{math.Pi, 0, math.Pi},
		{0, math.Pi, math.Pi},
		{4 * math.Pi, 0, 0},
	}
	for _, tt := range tests {
		got := AngleDiff(tt.a, tt.b)
		if !almostEqual(got, tt.want) {
			t.Errorf("AngleDiff(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestInvertMatrix(t *testing.T) {
	m := PoseMatrix(Pose{X: 3, Y: -2, Theta: 0.7})
	got := MultiplyMatrices(m, InvertMatrix(m))

	id := Identity()
	if !almostEqual(got.A, id.A) || !almostEqual(got.B, id.B) || !almostEqual(got.Tx, id.Tx) ||
		!almostEqual(got.C, id.C) || !almostEqual(got.D, id.D) || !almostEqual(got.Ty, id.Ty) {
		t.Errorf("m * m^-1 = %+v, want identity", got)
	}

	singular := AffineMatrix{A: 1, B: 2, C: 2, D: 4}
	if InvertMatrix(singular) != Identity() {
		t.Error("singular matrix should invert to identity")
	}
}

func TestPoseMatrixRoundTrip(t *testing.T) {
	for _, p := range []Pose{
		{X: 1, Y: 2, Theta: 0.3},
		{X: -4, Y: 0.5, Theta: 5.9},
		{X: 0, Y: 0, Theta: math.Pi},
	} {
		if got := MatrixPose(PoseMatrix(p)); !posesEqual(got, p) {
			t.Errorf("MatrixPose(PoseMatrix(%v)) = %v", p, got)
		}
	}
}

func TestYawQuaternion(t *testing.T) {
	for _, yaw := range []float64{0, 0.4, -1.2, math.Pi / 2, 3} {
		q := YawQuaternion(yaw)
		if !almostEqual(q[0]*q[0]+q[1]*q[1]+q[2]*q[2]+q[3]*q[3], 1) {
			t.Errorf("YawQuaternion(%v) = %v is not unit length", yaw, q)
		}
		if got := QuaternionYaw(q); !almostEqual(got, yaw) {
			t.Errorf("QuaternionYaw(YawQuaternion(%v)) = %v", yaw, got)
		}
	}
}
