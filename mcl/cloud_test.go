package mcl

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestParticleCloud_Normalize(t *testing.T) {
	cloud := ParticleCloud{{W: 1}, {W: 3}, {W: 4}}

	ok := cloud.Normalize()

	assert.True(t, ok)
	assert.InDelta(t, 1.0, cloud.Sum(), 1e-12)
	want := []float64{0.125, 0.375, 0.5}
	if diff := cmp.Diff(want, cloud.Weights(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}
}

func TestParticleCloud_NormalizeKeepsPoses(t *testing.T) {
	cloud := ParticleCloud{{X: 1, Y: 2, Theta: 3, W: 2}, {X: 4, Y: 5, Theta: 6, W: 2}}
	poses := cloud.Poses()

	cloud.Normalize()

	assert.Equal(t, poses, cloud.Poses())
}

func TestParticleCloud_NormalizeDegenerate(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
	}{
		{"all zero", []float64{0, 0, 0, 0}},
		{"NaN", []float64{1, math.NaN(), 1, 1}},
		{"positive infinity", []float64{1, math.Inf(1), 1, 1}},
		{"negative weight", []float64{1, -0.5, 1, 1}},
		{"sum overflows", []float64{math.MaxFloat64, math.MaxFloat64, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud := make(ParticleCloud, len(tt.weights))
			for i, w := range tt.weights {
				cloud[i].W = w
			}

			ok := cloud.Normalize()

			assert.False(t, ok)
			for _, p := range cloud {
				assert.Equal(t, 0.25, p.W)
			}
		})
	}
}

func TestParticleCloud_NormalizeEmpty(t *testing.T) {
	var cloud ParticleCloud
	assert.False(t, cloud.Normalize())
}

func TestParticleCloud_Clone(t *testing.T) {
	cloud := ParticleCloud{{X: 1, W: 0.5}, {X: 2, W: 0.5}}
	c := cloud.Clone()
	c[0].X = 99

	assert.Equal(t, 1.0, cloud[0].X)
	assert.Nil(t, ParticleCloud(nil).Clone())
}
