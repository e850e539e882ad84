package mcl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTracker_Ready(t *testing.T) {
	st := NewStateTracker()
	assert.False(t, st.IsReady())
	assert.Nil(t, st.Field())
	assert.Equal(t, "uninitialized", st.Snapshot().FilterState)

	df := boxField(t, 5, 5)
	st.SetField(df)

	assert.True(t, st.IsReady())
	assert.Same(t, df, st.Field())

	st.Update(Snapshot{FilterState: "ready"})
	s := st.Snapshot()
	assert.True(t, s.Ready, "Update keeps readiness from the field")
	assert.False(t, s.UpdatedAt.IsZero())
}

func TestStateTracker_SnapshotIsolation(t *testing.T) {
	st := NewStateTracker()
	st.Update(Snapshot{Particles: ParticleCloud{{X: 1, W: 1}}})

	s := st.Snapshot()
	s.Particles[0].X = 99

	assert.Equal(t, 1.0, st.Snapshot().Particles[0].X)
}
