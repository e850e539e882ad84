package mcl

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ParticleCloud is the ordered set of pose hypotheses
type ParticleCloud []Particle

// Weights returns a copy of the particle weights in cloud order
func (c ParticleCloud) Weights() []float64 {
	w := make([]float64, len(c))
	for i, p := range c {
		w[i] = p.W
	}
	return w
}

// Sum returns the total weight
func (c ParticleCloud) Sum() float64 {
	return floats.Sum(c.Weights())
}

// Clone returns an independent copy of the cloud
func (c ParticleCloud) Clone() ParticleCloud {
	if c == nil {
		return nil
	}
	out := make(ParticleCloud, len(c))
	copy(out, c)
	return out
}

// Poses strips the weights
func (c ParticleCloud) Poses() []Pose {
	poses := make([]Pose, len(c))
	for i, p := range c {
		poses[i] = p.Pose()
	}
	return poses
}

// SetUniform assigns every particle weight 1/N
func (c ParticleCloud) SetUniform() {
	if len(c) == 0 {
		return
	}
	w := 1 / float64(len(c))
	for i := range c {
		c[i].W = w
	}
}

// Normalize rescales the weights to sum to 1. When the weights cannot form
// a distribution (any weight negative or non-finite, or a zero or
// non-finite total) the cloud is reset to uniform and false is returned.
func (c ParticleCloud) Normalize() bool {
	if len(c) == 0 {
		return false
	}
	w := c.Weights()
	for _, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			c.SetUniform()
			return false
		}
	}
	sum := floats.Sum(w)
	if !(sum > 0) || math.IsInf(sum, 0) {
		c.SetUniform()
		return false
	}
	floats.Scale(1/sum, w)
	for i := range c {
		c[i].W = w[i]
	}
	return true
}
