package mcl

import (
	"sort"
	"sync"
	"time"
)

// TransformSource answers whether two frames can be related at an instant
type TransformSource interface {
	CanTransform(target, source string, stamp time.Time) bool
}

// defaultOdometryCapacity bounds the odometry history kept for lookups
const defaultOdometryCapacity = 256

// OdometryBuffer is a TransformSource built from the odometry stream.
// The laser is rigidly mounted on the base, so laser↔base is always
// available; odom↔base is available when a sample lies within Tolerance
// of the requested stamp.
type OdometryBuffer struct {
	mu        sync.RWMutex
	frames    FrameConfig
	tolerance time.Duration
	capacity  int
	samples   []Odometry // ascending by Stamp
}

// NewOdometryBuffer creates a buffer for the given frames
func NewOdometryBuffer(frames FrameConfig, capacity int) *OdometryBuffer {
	if capacity <= 0 {
		capacity = defaultOdometryCapacity
	}
	return &OdometryBuffer{
		frames:    frames,
		tolerance: frames.Tolerance(),
		capacity:  capacity,
	}
}

// Add records an odometry sample. Out-of-order samples are inserted in
// place; the oldest samples are evicted beyond capacity.
func (b *OdometryBuffer) Add(o Odometry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := sort.Search(len(b.samples), func(k int) bool {
		return b.samples[k].Stamp.After(o.Stamp)
	})
	b.samples = append(b.samples, Odometry{})
	copy(b.samples[i+1:], b.samples[i:])
	b.samples[i] = o

	if over := len(b.samples) - b.capacity; over > 0 {
		b.samples = append(b.samples[:0], b.samples[over:]...)
	}
}

// Latest returns the most recent sample
func (b *OdometryBuffer) Latest() (Odometry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.samples) == 0 {
		return Odometry{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Len returns the number of buffered samples
func (b *OdometryBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// PoseAt returns the sample nearest to stamp. A zero stamp selects the
// latest sample. ok is false when nothing lies within the tolerance.
func (b *OdometryBuffer) PoseAt(stamp time.Time) (Pose, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.samples)
	if n == 0 {
		return Pose{}, false
	}
	if stamp.IsZero() {
		return b.samples[n-1].Pose, true
	}

	i := sort.Search(n, func(k int) bool { return !b.samples[k].Stamp.Before(stamp) })
	best := -1
	var bestGap time.Duration
	for _, k := range []int{i - 1, i} {
		if k < 0 || k >= n {
			continue
		}
		gap := absDuration(b.samples[k].Stamp.Sub(stamp))
		if best < 0 || gap < bestGap {
			best, bestGap = k, gap
		}
	}
	if bestGap > b.tolerance {
		return Pose{}, false
	}
	return b.samples[best].Pose, true
}

// CanTransform implements TransformSource
func (b *OdometryBuffer) CanTransform(target, source string, stamp time.Time) bool {
	if target == source {
		return true
	}
	f := b.frames
	pair := func(a, c string) bool {
		return (target == a && source == c) || (target == c && source == a)
	}
	switch {
	case pair(f.Base, f.Laser):
		return f.Laser != ""
	case pair(f.Odom, f.Base), pair(f.Odom, f.Laser):
		_, ok := b.PoseAt(stamp)
		return ok
	default:
		return false
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
