package mcl

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

const defaultQueueSize = 256

type eventKind int

const (
	mapEvent eventKind = iota
	odometryEvent
	scanEvent
	initialPoseEvent
)

type event struct {
	kind eventKind
	grid *OccupancyMap
	odom Odometry
	scan Scan
	pose InitialPose
}

// LocalizerOption customizes a Localizer
type LocalizerOption func(*Localizer)

// WithRandSource makes the filter's randomness reproducible
func WithRandSource(src rand.Source) LocalizerOption {
	return func(l *Localizer) { l.src = src }
}

// WithTransformSource replaces the odometry buffer as the scan gate
func WithTransformSource(ts TransformSource) LocalizerOption {
	return func(l *Localizer) { l.gate = ts }
}

// WithQueueSize sets the event queue length
func WithQueueSize(n int) LocalizerOption {
	return func(l *Localizer) { l.queue = n }
}

// Localizer connects transport events to a Filter. Handle* methods may be
// called from any goroutine; events are applied one at a time, in
// arrival order, by Run.
type Localizer struct {
	cfg   *Config
	out   Broadcaster
	odom  *OdometryBuffer
	gate  TransformSource
	state *StateTracker
	src   rand.Source
	queue int

	events    chan event
	ready     chan struct{}
	readyOnce sync.Once

	// owned by the Run goroutine
	filter   *Filter
	hint     *Pose
	cache    *PoseCache
	stats    LocalizerStats
	lastScan *Scan
	lastErr  string
}

// NewLocalizer creates a localizer. out may be nil to disable publishing.
func NewLocalizer(cfg *Config, out Broadcaster, opts ...LocalizerOption) *Localizer {
	l := &Localizer{
		cfg:   cfg,
		out:   out,
		odom:  NewOdometryBuffer(cfg.Frames, 0),
		state: NewStateTracker(),
		queue: defaultQueueSize,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.gate == nil {
		l.gate = l.odom
	}
	l.events = make(chan event, l.queue)

	if cfg.PoseCache != "" {
		pc, err := LoadPoseCache(cfg.PoseCache)
		if err != nil {
			log.Printf("[MCL] Warning: ignoring pose cache: %v", err)
		}
		l.cache = pc
	}
	return l
}

// State returns the tracker holding the latest outputs
func (l *Localizer) State() *StateTracker { return l.state }

// Odometry returns the odometry buffer used for transform lookups
func (l *Localizer) Odometry() *OdometryBuffer { return l.odom }

// HandleMap queues the static map. Only the first valid map is used.
func (l *Localizer) HandleMap(m *OccupancyMap) {
	l.events <- event{kind: mapEvent, grid: m}
}

// HandleOdometry queues an odometry pose
func (l *Localizer) HandleOdometry(o Odometry) {
	l.events <- event{kind: odometryEvent, odom: o}
}

// HandleScan queues a scan. Scans are dropped when the queue is full; the
// next cycle then sees a larger odometry delta.
func (l *Localizer) HandleScan(s Scan) {
	select {
	case l.events <- event{kind: scanEvent, scan: s}:
	default:
		log.Printf("[MCL] Event queue full, dropping scan")
	}
}

// HandleInitialPose queues a reseed hint
func (l *Localizer) HandleInitialPose(p InitialPose) {
	l.events <- event{kind: initialPoseEvent, pose: p}
}

// WaitForMap blocks until the map has been loaded and its distance field
// built, or ctx ends.
func (l *Localizer) WaitForMap(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for map: %w", ctx.Err())
	}
}

// Run processes events and rebroadcasts the frame correction until ctx
// ends. It returns an error only when the map cannot be used.
func (l *Localizer) Run(ctx context.Context) error {
	rate := l.cfg.Filter.BroadcastRate
	if rate <= 0 {
		rate = DefaultBroadcastRate
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	defer l.savePose()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			if err := l.process(ctx, ev); err != nil {
				return err
			}
		case now := <-ticker.C:
			l.broadcastCorrection(now)
		}
	}
}

func (l *Localizer) process(ctx context.Context, ev event) error {
	switch ev.kind {
	case mapEvent:
		return l.setMap(ev.grid)
	case odometryEvent:
		l.odom.Add(ev.odom)
	case scanEvent:
		l.processScan(ctx, ev.scan)
	case initialPoseEvent:
		l.processInitialPose(ev.pose)
	}
	return nil
}

func (l *Localizer) setMap(m *OccupancyMap) error {
	if l.filter != nil {
		log.Println("[MCL] Map already loaded, ignoring update")
		return nil
	}
	df, err := BuildDistanceField(m)
	if err != nil {
		return fmt.Errorf("building distance field: %w", err)
	}
	l.filter = NewFilter(df, l.cfg.Filter, l.cfg.Sensor, l.src)
	l.state.SetField(df)
	l.readyOnce.Do(func() { close(l.ready) })

	s := df.Stats()
	log.Printf("[MCL] Distance field ready: %dx%d @ %.3f m/cell, %d occupied, %d free, max distance %.2f m",
		s.Width, s.Height, s.Resolution, s.OccupiedCells, s.FreeCells, s.MaxDistance)

	if l.hint != nil {
		l.filter.SeedAround(*l.hint)
		l.hint = nil
		l.publish(time.Now())
	}
	return nil
}

func (l *Localizer) processInitialPose(p InitialPose) {
	if l.filter == nil {
		pose := p.Pose
		l.hint = &pose
		return
	}
	l.filter.SeedAround(p.Pose)
	log.Printf("[MCL] Reseeded %d particles around (%.2f, %.2f, %.2f)",
		l.filter.Config().Particles, p.X, p.Y, p.Theta)
	l.publish(p.Stamp)
}

func (l *Localizer) processScan(ctx context.Context, scan Scan) {
	l.stats.Scans++
	if l.filter == nil {
		return
	}

	frames := l.cfg.Frames
	source := scan.FrameID
	if source == "" {
		source = frames.Laser
	}
	if !l.gate.CanTransform(frames.Base, source, scan.Stamp) ||
		!l.gate.CanTransform(frames.Odom, frames.Base, scan.Stamp) {
		l.dropScan()
		return
	}
	odom, ok := l.odom.PoseAt(scan.Stamp)
	if !ok {
		l.dropScan()
		return
	}

	if l.filter.State() == Uninitialized {
		l.seed()
	}

	res, err := l.filter.Update(ctx, odom, scan)
	if err != nil {
		log.Printf("[MCL] Update failed: %v", err)
		return
	}
	if res.Ran {
		l.stats.Cycles++
		l.stats.LastCycle = time.Now()
		if res.ValidBeams == 0 {
			l.stats.EmptyScans++
		}
		if res.Degenerate {
			l.stats.DegenerateCycles++
		}
	}
	l.lastScan = &scan
	l.publish(scan.Stamp)
}

func (l *Localizer) dropScan() {
	l.stats.DroppedScans++
	if l.stats.DroppedScans == 1 || l.stats.DroppedScans%100 == 0 {
		log.Printf("[MCL] Transform unavailable, dropped %d scan(s)", l.stats.DroppedScans)
	}
}

func (l *Localizer) seed() {
	if l.cache.Matches(l.filter.Field().Map()) {
		log.Printf("[MCL] Seeding around cached pose (%.2f, %.2f, %.2f)",
			l.cache.Pose.X, l.cache.Pose.Y, l.cache.Pose.Theta)
		l.filter.SeedAround(l.cache.Pose)
		return
	}
	log.Printf("[MCL] Seeding %d particles over free space", l.filter.Config().Particles)
	l.filter.SeedUniform()
}

// publish refreshes the shared snapshot and sends the cloud and estimate
func (l *Localizer) publish(stamp time.Time) {
	cloud, err := l.filter.Particles()
	if err != nil {
		return
	}
	est, _ := l.filter.Estimate()
	corr, hasCorr := l.filter.Correction()
	corr.Parent, corr.Child = l.cfg.Frames.Map, l.cfg.Frames.Odom

	l.state.Update(Snapshot{
		FilterState:   l.filter.State().String(),
		Estimate:      est,
		Particles:     cloud,
		Correction:    corr,
		HasCorrection: hasCorr,
		LastScan:      l.lastScan,
		Stats:         l.stats,
	})

	if l.out == nil {
		return
	}
	if err := l.out.PublishParticleCloud(cloud); err != nil {
		l.logPublishError(err)
	}
	if err := l.out.PublishPose(est, stamp); err != nil {
		l.logPublishError(err)
	}
}

func (l *Localizer) broadcastCorrection(now time.Time) {
	if l.out == nil || l.filter == nil {
		return
	}
	corr, ok := l.filter.Correction()
	if !ok {
		return
	}
	corr.Parent, corr.Child = l.cfg.Frames.Map, l.cfg.Frames.Odom
	if err := l.out.PublishCorrection(corr.Restamp(now)); err != nil {
		l.logPublishError(err)
		return
	}
	l.lastErr = ""
}

// logPublishError logs each distinct publish failure once
func (l *Localizer) logPublishError(err error) {
	if msg := err.Error(); msg != l.lastErr {
		log.Printf("[MCL] Publish failed: %v", err)
		l.lastErr = msg
	}
}

func (l *Localizer) savePose() {
	if l.cfg.PoseCache == "" || l.filter == nil {
		return
	}
	est, err := l.filter.Estimate()
	if err != nil || !est.Valid {
		return
	}
	m := l.filter.Field().Map()
	pc := &PoseCache{Pose: est.Pose, MapWidth: m.Width, MapHeight: m.Height}
	if err := SavePoseCache(l.cfg.PoseCache, pc); err != nil {
		log.Printf("[MCL] Warning: failed to save pose cache: %v", err)
		return
	}
	log.Printf("[MCL] Saved pose cache to %s", l.cfg.PoseCache)
}
