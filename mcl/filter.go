package mcl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/exp/rand"
)

// ErrNotReady is returned by filter operations that need a seeded cloud
var ErrNotReady = errors.New("mcl: particle cloud not initialized")

// FilterState tags whether the cloud has been seeded
type FilterState int

const (
	Uninitialized FilterState = iota
	Ready
)

func (s FilterState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("FilterState(%d)", int(s))
	}
}

// CycleResult reports what a call to Update did
type CycleResult struct {
	Ran        bool          `json:"ran"`        // false when motion stayed under both thresholds
	ValidBeams int           `json:"validBeams"` // 0 means weights were carried over
	Degenerate bool          `json:"degenerate"` // weights fell back to uniform
	Estimate   EstimatedPose `json:"estimate"`
}

// Filter is a Monte Carlo localization particle filter over a static
// distance field. A Filter is not safe for concurrent use.
type Filter struct {
	cfg         FilterConfig
	field       *DistanceField
	motion      MotionModel
	measurement *MeasurementModel
	resampler   *Resampler

	state      FilterState
	cloud      ParticleCloud
	estimate   EstimatedPose
	correction FrameCorrection
	hasCorr    bool
	lastOdom   Pose
	hasOdom    bool
}

// NewFilter creates an uninitialized filter. Zero fields in cfg take
// their defaults; src may be nil to seed from cfg.Seed or the clock.
func NewFilter(field *DistanceField, cfg FilterConfig, sensor SensorConfig, src rand.Source) *Filter {
	cfg = cfg.WithDefaults()
	sensor = sensor.WithDefaults()
	if src == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		src = rand.NewSource(seed)
	}

	mm := NewMeasurementModel(field, sensor)
	mm.Workers = cfg.Workers

	return &Filter{
		cfg:         cfg,
		field:       field,
		motion:      NewMotionModel(field.Map()),
		measurement: mm,
		resampler:   NewResampler(field, cfg.Jitter, src),
	}
}

// Measurement exposes the measurement model so the error and likelihood
// functions can be swapped.
func (f *Filter) Measurement() *MeasurementModel { return f.measurement }

// Config returns the effective filter configuration
func (f *Filter) Config() FilterConfig { return f.cfg }

// State reports whether the cloud has been seeded
func (f *Filter) State() FilterState { return f.state }

// Field returns the distance field the filter localizes against
func (f *Filter) Field() *DistanceField { return f.field }

// SeedUniform spreads the cloud over random free cells.
func (f *Filter) SeedUniform() {
	f.cloud = f.resampler.RandomFree(f.cfg.Particles)
	f.cloud.SetUniform()
	f.state = Ready
	f.estimate = EstimatePose(f.cloud, f.cfg.EstimateFraction)
	f.updateCorrection(time.Now())
}

// SeedAround draws the cloud from a Gaussian around pose using the
// configured initial spreads. The estimate is set to pose itself.
func (f *Filter) SeedAround(pose Pose) {
	f.SeedAroundWith(pose, f.cfg.InitialSigmaXY, f.cfg.InitialSigmaTheta)
}

// SeedAroundWith is SeedAround with explicit spreads.
func (f *Filter) SeedAroundWith(pose Pose, sigmaXY, sigmaTheta float64) {
	f.cloud = f.resampler.Gaussian(pose, f.cfg.Particles, sigmaXY, sigmaTheta)
	f.cloud.SetUniform()
	f.state = Ready
	pose.Theta = NormalizeAngle(pose.Theta)
	f.estimate = EstimatedPose{Pose: pose, Valid: true}
	f.updateCorrection(time.Now())
}

// Update feeds one odometry pose and scan to the filter. The first pose
// only sets the odometry reference. Afterwards a full cycle runs when the
// motion since the last cycle exceeds the translation or the rotation
// threshold.
func (f *Filter) Update(ctx context.Context, odom Pose, scan Scan) (CycleResult, error) {
	if f.state != Ready {
		return CycleResult{}, ErrNotReady
	}
	if !f.hasOdom {
		f.lastOdom, f.hasOdom = odom, true
		f.updateCorrection(scan.Stamp)
		return CycleResult{Estimate: f.estimate}, nil
	}
	if !f.ShouldUpdate(odom) {
		return CycleResult{Estimate: f.estimate}, nil
	}
	return f.cycle(ctx, odom, scan)
}

// ShouldUpdate reports whether odom is far enough from the last cycle's
// odometry to trigger a cycle.
func (f *Filter) ShouldUpdate(odom Pose) bool {
	if !f.hasOdom {
		return false
	}
	d := Delta(f.lastOdom, odom)
	return d.Translation() > f.cfg.TranslationThreshold ||
		math.Abs(d.DTheta) > f.cfg.RotationThreshold
}

func (f *Filter) cycle(ctx context.Context, odom Pose, scan Scan) (CycleResult, error) {
	res := CycleResult{Ran: true}

	prevCloud, prevOdom := f.cloud.Clone(), f.lastOdom
	f.motion.Apply(f.cloud, f.lastOdom, odom)
	f.lastOdom = odom

	ref := 0.0
	if f.cfg.HeadingReference == HeadingEstimate && f.estimate.Valid {
		ref = f.estimate.Theta
	}
	n, err := f.measurement.Score(ctx, f.cloud, scan, ref)
	res.ValidBeams = n
	if err != nil {
		// an interrupted cycle leaves no trace; the next update retries it
		f.cloud, f.lastOdom = prevCloud, prevOdom
		return res, fmt.Errorf("scoring particles: %w", err)
	}
	if n == 0 {
		log.Printf("[MCL] Scan has no beams in (%.2f, %.2f) m, keeping previous weights",
			f.measurement.Sensor.MinRange, f.measurement.Sensor.MaxRange)
	}

	res.Degenerate = !f.cloud.Normalize()
	if res.Degenerate {
		log.Printf("[MCL] Degenerate weights, reset to uniform")
	}

	f.estimate = EstimatePose(f.cloud, f.cfg.EstimateFraction)
	res.Estimate = f.estimate

	next, err := f.resampler.Resample(f.cloud)
	if err != nil {
		return res, fmt.Errorf("resampling: %w", err)
	}
	f.cloud = next

	f.updateCorrection(scan.Stamp)
	return res, nil
}

func (f *Filter) updateCorrection(stamp time.Time) {
	if !f.hasOdom || !f.estimate.Valid {
		return
	}
	f.correction = ComputeCorrection(f.estimate.Pose, f.lastOdom, stamp)
	f.hasCorr = true
}

// Estimate returns the latest pose estimate
func (f *Filter) Estimate() (EstimatedPose, error) {
	if f.state != Ready {
		return EstimatedPose{}, ErrNotReady
	}
	return f.estimate, nil
}

// Particles returns a copy of the current cloud
func (f *Filter) Particles() (ParticleCloud, error) {
	if f.state != Ready {
		return nil, ErrNotReady
	}
	return f.cloud.Clone(), nil
}

// Correction returns the last computed map→odom correction. ok is false
// until both an estimate and an odometry reference exist.
func (f *Filter) Correction() (FrameCorrection, bool) {
	return f.correction, f.hasCorr
}

// LastOdometry returns the odometry pose of the last cycle
func (f *Filter) LastOdometry() (Pose, bool) {
	return f.lastOdom, f.hasOdom
}
