package mcl

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultJitter is the per-axis noise added to redrawn particles
var DefaultJitter = JitterConfig{X: 0.1, Y: 0.1, Theta: 0.4}

// Counts splits a cloud of n particles into the weighted draw and the
// free-space reinjection: drawn = floor(n/3)*2, injected = n - drawn.
func Counts(n int) (drawn, injected int) {
	drawn = (n / 3) * 2
	return drawn, n - drawn
}

// Resampler redraws the cloud in proportion to weight, jitters the draws
// and refills the remainder from random free cells. It is not safe for
// concurrent use.
type Resampler struct {
	field  *DistanceField
	bounds orb.Bound
	jitter JitterConfig
	rng    *rand.Rand

	noiseX, noiseY, noiseTheta distuv.Normal
}

// NewResampler creates a resampler drawing randomness from src
func NewResampler(field *DistanceField, jitter JitterConfig, src rand.Source) *Resampler {
	return &Resampler{
		field:      field,
		bounds:     field.Map().Bounds(),
		jitter:     jitter,
		rng:        rand.New(src),
		noiseX:     distuv.Normal{Mu: 0, Sigma: jitter.X, Src: src},
		noiseY:     distuv.Normal{Mu: 0, Sigma: jitter.Y, Src: src},
		noiseTheta: distuv.Normal{Mu: 0, Sigma: jitter.Theta, Src: src},
	}
}

// Resample returns a new cloud of the same size with uniform weights.
// The input cloud is left untouched.
func (r *Resampler) Resample(cloud ParticleCloud) (ParticleCloud, error) {
	n := len(cloud)
	if n == 0 {
		return nil, ErrNotReady
	}
	drawn, injected := Counts(n)

	out := make(ParticleCloud, 0, n)
	out = append(out, r.draw(cloud, drawn)...)
	for i := range out {
		r.perturb(&out[i])
	}
	out = append(out, r.RandomFree(injected)...)
	out.SetUniform()
	return out, nil
}

// draw picks k particles with replacement by inverting the cumulative
// weight distribution with a binary search.
func (r *Resampler) draw(cloud ParticleCloud, k int) ParticleCloud {
	n := len(cloud)
	cum := floats.CumSum(make([]float64, n), cloud.Weights())
	total := cum[n-1]
	uniform := !(total > 0) || math.IsInf(total, 0) || math.IsNaN(total)

	out := make(ParticleCloud, k)
	for i := range out {
		var idx int
		if uniform {
			idx = r.rng.Intn(n)
		} else {
			u := r.rng.Float64() * total
			idx = sort.Search(n, func(j int) bool { return cum[j] > u })
			if idx >= n {
				idx = n - 1
			}
		}
		out[i] = cloud[idx]
	}
	return out
}

func (r *Resampler) perturb(p *Particle) {
	if r.jitter.X > 0 {
		p.X += r.noiseX.Rand()
	}
	if r.jitter.Y > 0 {
		p.Y += r.noiseY.Rand()
	}
	if r.jitter.Theta > 0 {
		p.Theta += r.noiseTheta.Rand()
	}
	p.Theta = NormalizeAngle(p.Theta)
	p.X = clampTo(p.X, r.bounds.Min.X(), r.bounds.Max.X())
	p.Y = clampTo(p.Y, r.bounds.Min.Y(), r.bounds.Max.Y())
}

// RandomFree places k particles at the centres of uniformly chosen free
// cells with uniformly random headings. Weights are left at zero.
func (r *Resampler) RandomFree(k int) ParticleCloud {
	free := r.field.FreeCells()
	out := make(ParticleCloud, k)
	for i := range out {
		c := r.field.CellCenter(free[r.rng.Intn(len(free))])
		out[i] = Particle{X: c.X, Y: c.Y, Theta: r.rng.Float64() * 2 * math.Pi}
	}
	return out
}

// Gaussian returns k particles drawn around pose with the given spreads.
func (r *Resampler) Gaussian(pose Pose, k int, sigmaXY, sigmaTheta float64) ParticleCloud {
	src := rand.NewSource(r.rng.Uint64())
	nx := distuv.Normal{Mu: pose.X, Sigma: sigmaXY, Src: src}
	ny := distuv.Normal{Mu: pose.Y, Sigma: sigmaXY, Src: src}
	nt := distuv.Normal{Mu: pose.Theta, Sigma: sigmaTheta, Src: src}

	out := make(ParticleCloud, k)
	for i := range out {
		p := Particle{X: pose.X, Y: pose.Y, Theta: pose.Theta}
		if sigmaXY > 0 {
			p.X, p.Y = nx.Rand(), ny.Rand()
		}
		if sigmaTheta > 0 {
			p.Theta = nt.Rand()
		}
		p.Theta = NormalizeAngle(p.Theta)
		p.X = clampTo(p.X, r.bounds.Min.X(), r.bounds.Max.X())
		p.Y = clampTo(p.Y, r.bounds.Min.Y(), r.bounds.Max.Y())
		out[i] = p
	}
	return out
}
