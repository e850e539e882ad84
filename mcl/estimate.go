package mcl

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultEstimateFraction is the share of highest-weight particles averaged
// into the pose estimate.
const DefaultEstimateFraction = 0.3

// EstimatePose reduces the cloud to one pose: the mean position and the
// circular mean heading of the top fraction of particles by weight (at
// least one). An empty cloud yields an invalid pose.
func EstimatePose(cloud ParticleCloud, fraction float64) EstimatedPose {
	n := len(cloud)
	if n == 0 {
		return EstimatedPose{}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return cloud[order[a]].W > cloud[order[b]].W
	})

	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	xs := make([]float64, k)
	ys := make([]float64, k)
	thetas := make([]float64, k)
	for i, idx := range order[:k] {
		xs[i] = cloud[idx].X
		ys[i] = cloud[idx].Y
		thetas[i] = cloud[idx].Theta
	}

	return EstimatedPose{
		Pose: Pose{
			X:     stat.Mean(xs, nil),
			Y:     stat.Mean(ys, nil),
			Theta: CircularMean(thetas),
		},
		Valid: true,
	}
}

// CircularMean averages headings on the unit circle and returns the result
// in [0, 2π).
func CircularMean(thetas []float64) float64 {
	if len(thetas) == 0 {
		return 0
	}
	return NormalizeAngle(stat.CircularMean(thetas, nil))
}
