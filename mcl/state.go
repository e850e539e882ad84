package mcl

import (
	"sync"
	"time"
)

// LocalizerStats counts what the localizer has processed
type LocalizerStats struct {
	Scans            int       `json:"scans"`
	DroppedScans     int       `json:"droppedScans"` // no transform available
	Cycles           int       `json:"cycles"`
	EmptyScans       int       `json:"emptyScans"` // cycles without a valid beam
	DegenerateCycles int       `json:"degenerateCycles"`
	LastCycle        time.Time `json:"lastCycle"`
}

// Snapshot is a consistent copy of the localizer's outputs
type Snapshot struct {
	Ready         bool            `json:"ready"`
	FilterState   string          `json:"filterState"`
	Estimate      EstimatedPose   `json:"estimate"`
	Particles     ParticleCloud   `json:"-"`
	Correction    FrameCorrection `json:"correction"`
	HasCorrection bool            `json:"hasCorrection"`
	LastScan      *Scan           `json:"-"`
	Stats         LocalizerStats  `json:"stats"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// StateTracker shares the localizer's latest outputs with HTTP readers.
// The localizer goroutine writes, any goroutine reads.
type StateTracker struct {
	mu    sync.RWMutex
	field *DistanceField
	snap  Snapshot
}

// NewStateTracker creates an empty tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{snap: Snapshot{FilterState: Uninitialized.String()}}
}

// SetField records the distance field once the map is loaded
func (st *StateTracker) SetField(df *DistanceField) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.field = df
	st.snap.Ready = df != nil
}

// Field returns the distance field, or nil before the map is loaded
func (st *StateTracker) Field() *DistanceField {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.field
}

// IsReady reports whether the map and field are available
func (st *StateTracker) IsReady() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap.Ready
}

// Update replaces the snapshot. The tracker takes ownership of the
// particle slice and scan.
func (st *StateTracker) Update(s Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s.Ready = st.field != nil
	s.UpdatedAt = time.Now()
	st.snap = s
}

// Snapshot returns a copy safe to use after the lock is released
func (st *StateTracker) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := st.snap
	s.Particles = st.snap.Particles.Clone()
	return s
}
