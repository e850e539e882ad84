package mcl

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Heading reference modes for beam projection
const (
	// HeadingEstimate measures each particle's beam offset from the heading
	// of the previous estimate.
	HeadingEstimate = "estimate"
	// HeadingAbsolute projects beams relative to a zero reference heading.
	HeadingAbsolute = "absolute"
)

// minMeanError keeps a perfect match from producing an infinite weight
const minMeanError = 1e-12

// DefaultSensorConfig matches a typical 2-D lidar
var DefaultSensorConfig = SensorConfig{MinRange: 0.2, MaxRange: 6.0, MaxPenalty: 2.0}

// ErrorFunc converts a beam endpoint's obstacle distance into an error term
type ErrorFunc func(d float64) float64

// LikelihoodFunc reduces a particle's beam errors to an unnormalized weight
type LikelihoodFunc func(errs []float64) float64

// CubicError penalizes near misses superlinearly
func CubicError(d float64) float64 {
	return d * d * d
}

// InverseMeanLikelihood weights a particle by the reciprocal of its mean error
func InverseMeanLikelihood(errs []float64) float64 {
	m := stat.Mean(errs, nil)
	if m < minMeanError {
		m = minMeanError
	}
	return 1 / m
}

// ValidBeams filters a scan to finite ranges strictly inside the sensor window
func (s SensorConfig) ValidBeams(scan Scan) []ScanBeam {
	var out []ScanBeam
	for _, b := range scan.Beams() {
		if math.IsNaN(b.Range) || math.IsInf(b.Range, 0) {
			continue
		}
		if b.Range > s.MinRange && b.Range < s.MaxRange {
			out = append(out, b)
		}
	}
	return out
}

// BeamEndpoint projects a beam from a particle into world coordinates.
// offset is the particle heading relative to the reference heading.
func BeamEndpoint(p Particle, b ScanBeam, offset float64) Point {
	a := b.Angle + offset
	return Point{X: p.X + b.Range*math.Cos(a), Y: p.Y + b.Range*math.Sin(a)}
}

// MeasurementModel scores particles with a likelihood field: each beam
// endpoint is looked up in the distance field and the errors are folded
// into a weight.
type MeasurementModel struct {
	Field      *DistanceField
	Sensor     SensorConfig
	Error      ErrorFunc
	Likelihood LikelihoodFunc
	Workers    int // 0 uses GOMAXPROCS
}

// NewMeasurementModel creates a model with the cubic error and
// inverse-mean likelihood. Zero sensor fields take their defaults.
func NewMeasurementModel(field *DistanceField, sensor SensorConfig) *MeasurementModel {
	return &MeasurementModel{
		Field:      field,
		Sensor:     sensor.WithDefaults(),
		Error:      CubicError,
		Likelihood: InverseMeanLikelihood,
	}
}

// Score rewrites every particle weight from the scan and returns the
// number of valid beams used. With no valid beams the weights are left
// unchanged. Particles are scored in parallel; each worker writes a
// disjoint range of the cloud.
func (mm *MeasurementModel) Score(ctx context.Context, cloud ParticleCloud, scan Scan, refHeading float64) (int, error) {
	beams := mm.Sensor.ValidBeams(scan)
	if len(beams) == 0 || len(cloud) == 0 {
		return len(beams), nil
	}

	errFn, likeFn := mm.Error, mm.Likelihood
	if errFn == nil {
		errFn = CubicError
	}
	if likeFn == nil {
		likeFn = InverseMeanLikelihood
	}

	workers := mm.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(cloud) {
		workers = len(cloud)
	}
	chunk := (len(cloud) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(cloud); start += chunk {
		end := min(start+chunk, len(cloud))
		part := cloud[start:end]
		g.Go(func() error {
			errs := make([]float64, len(beams))
			for i := range part {
				if err := ctx.Err(); err != nil {
					return err
				}
				part[i].W = likeFn(mm.beamErrors(part[i], beams, refHeading, errFn, errs))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(beams), err
	}
	return len(beams), nil
}

func (mm *MeasurementModel) beamErrors(p Particle, beams []ScanBeam, ref float64, errFn ErrorFunc, errs []float64) []float64 {
	offset := NormalizeAngle(p.Theta - ref)
	for k, b := range beams {
		end := BeamEndpoint(p, b, offset)
		d := mm.Field.Query(end.X, end.Y)
		if d < 0 {
			d = mm.Sensor.MaxPenalty
		}
		errs[k] = errFn(d)
	}
	return errs
}
