package mcl

import (
	"math"
	"time"
)

// DefaultBroadcastRate is how often (Hz) the last correction is republished
const DefaultBroadcastRate = 5.0

// FrameCorrection is the map→odom transform: where the odometry frame's
// origin sits in the map so that odometry poses line up with the estimate.
type FrameCorrection struct {
	Parent      string     `json:"parent"`
	Child       string     `json:"child"`
	Translation Point      `json:"translation"`
	Yaw         float64    `json:"yaw"`      // radians, (-π, π]
	Rotation    [4]float64 `json:"rotation"` // quaternion x, y, z, w
	Stamp       time.Time  `json:"stamp"`
}

// ComputeCorrection derives map→odom from the estimated robot pose in the
// map frame and the robot pose reported by odometry at the same instant:
// T_map_odom = T_map_base · (T_odom_base)⁻¹
func ComputeCorrection(mapBase, odomBase Pose, stamp time.Time) FrameCorrection {
	m := MultiplyMatrices(PoseMatrix(mapBase), InvertMatrix(PoseMatrix(odomBase)))
	yaw := math.Atan2(m.C, m.A)
	return FrameCorrection{
		Translation: Point{X: m.Tx, Y: m.Ty},
		Yaw:         yaw,
		Rotation:    YawQuaternion(yaw),
		Stamp:       stamp,
	}
}

// Matrix returns the correction as an affine transform
func (c FrameCorrection) Matrix() AffineMatrix {
	return PoseMatrix(Pose{X: c.Translation.X, Y: c.Translation.Y, Theta: c.Yaw})
}

// Apply maps an odometry-frame pose into the map frame
func (c FrameCorrection) Apply(odom Pose) Pose {
	return MatrixPose(MultiplyMatrices(c.Matrix(), PoseMatrix(odom)))
}

// Restamp returns a copy carrying a new timestamp, used when the same
// correction is rebroadcast between filter cycles.
func (c FrameCorrection) Restamp(t time.Time) FrameCorrection {
	c.Stamp = t
	return c
}
