package mcl

import (
	"math"

	"github.com/paulmach/orb"
)

// MotionModel moves every particle by the odometry delta, rotated into
// that particle's heading frame. It adds no noise.
type MotionModel struct {
	Bounds orb.Bound
}

// NewMotionModel creates a motion model confined to the map's extent
func NewMotionModel(m *OccupancyMap) MotionModel {
	return MotionModel{Bounds: m.Bounds()}
}

// Delta computes the odometry-frame motion between two readings. DTheta
// is the shortest signed rotation.
func Delta(oldOdom, newOdom Pose) OdometryDelta {
	return OdometryDelta{
		DX:     newOdom.X - oldOdom.X,
		DY:     newOdom.Y - oldOdom.Y,
		DTheta: AngleDiff(newOdom.Theta, oldOdom.Theta),
	}
}

// Apply advances the cloud in place from oldOdom to newOdom.
func (mm MotionModel) Apply(cloud ParticleCloud, oldOdom, newOdom Pose) {
	d := Delta(oldOdom, newOdom)
	for i := range cloud {
		p := &cloud[i]
		a := p.Theta - oldOdom.Theta
		cos, sin := math.Cos(a), math.Sin(a)
		p.X += d.DX*cos - d.DY*sin
		p.Y += d.DX*sin + d.DY*cos
		p.Theta = NormalizeAngle(p.Theta + d.DTheta)
		p.X, p.Y = mm.Clamp(p.X, p.Y)
	}
}

// Clamp pins (x, y) inside the bounding box. The upper edges map to the
// largest float below the edge so the result stays inside the grid.
func (mm MotionModel) Clamp(x, y float64) (float64, float64) {
	return clampTo(x, mm.Bounds.Min.X(), mm.Bounds.Max.X()),
		clampTo(y, mm.Bounds.Min.Y(), mm.Bounds.Max.Y())
}

func clampTo(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v >= hi {
		return math.Nextafter(hi, lo)
	}
	return v
}
