package mcl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDistanceField_Box(t *testing.T) {
	df := boxField(t, 10, 10)

	assert.Equal(t, 0.0, df.At(Cell{I: 0, J: 0}), "occupied cells are at distance 0")
	assert.Equal(t, 0.0, df.At(Cell{I: 9, J: 4}))
	assert.InDelta(t, 1.0, df.At(Cell{I: 1, J: 1}), 1e-12)
	assert.InDelta(t, 4.0, df.At(Cell{I: 4, J: 4}), 1e-12)
	assert.InDelta(t, 4.0, df.MaxDistance(), 1e-12)
	assert.Len(t, df.FreeCells(), 64)
}

func TestBuildDistanceField_GrowsAwayFromWall(t *testing.T) {
	df := boxField(t, 10, 10)

	prev := df.At(Cell{I: 0, J: 5})
	for i := 1; i <= 4; i++ {
		d := df.At(Cell{I: i, J: 5})
		assert.Greater(t, d, prev, "distance should grow at column %d", i)
		prev = d
	}
}

func TestBuildDistanceField_Resolution(t *testing.T) {
	df, err := BuildDistanceField(boxMap(10, 10, 0.05, Point{X: -0.25, Y: -0.25}))
	require.NoError(t, err)

	assert.InDelta(t, 0.05, df.At(Cell{I: 1, J: 3}), 1e-12)
	assert.InDelta(t, 0.10, df.At(Cell{I: 2, J: 5}), 1e-12)
}

func TestBuildDistanceField_Diagonal(t *testing.T) {
	m := NewOccupancyMap(5, 5, 1, Point{}, CellFree)
	m.Set(0, 0, CellOccupied)
	df, err := BuildDistanceField(m)
	require.NoError(t, err)

	assert.InDelta(t, 5.0, df.At(Cell{I: 3, J: 4}), 1e-12)
	assert.InDelta(t, 1.4142135623730951, df.At(Cell{I: 1, J: 1}), 1e-12)
}

func TestDistanceField_Query(t *testing.T) {
	df := boxField(t, 10, 10)

	tests := []struct {
		name string
		x, y float64
		want float64
	}{
		{"wall cell", 0.5, 0.5, 0},
		{"next to wall", 1.5, 1.5, 1},
		{"cell corner truncates", 2.0, 5.0, 2},
		{"far right", 1000, 5, OutOfMap},
		{"just left of the grid", -0.5, 5, OutOfMap},
		{"below the grid", 5, -0.01, OutOfMap},
		{"upper edge is outside", 5, 10, OutOfMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, df.Query(tt.x, tt.y), 1e-12)
		})
	}
}

func TestDistanceField_LookupReportsOutside(t *testing.T) {
	df := boxField(t, 10, 10)

	_, ok := df.Lookup(1000, 0)
	assert.False(t, ok)

	d, ok := df.Lookup(4.5, 4.5)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, d, 1e-12)
}

func TestBuildDistanceField_Errors(t *testing.T) {
	_, err := BuildDistanceField(NewOccupancyMap(4, 4, 1, Point{}, CellFree))
	assert.ErrorIs(t, err, ErrNoOccupiedCells)

	_, err = BuildDistanceField(NewOccupancyMap(4, 4, 1, Point{}, CellOccupied))
	assert.ErrorIs(t, err, ErrNoFreeCells)

	unknown := NewOccupancyMap(4, 4, 1, Point{}, CellUnknown)
	unknown.Set(0, 0, CellOccupied)
	_, err = BuildDistanceField(unknown)
	assert.ErrorIs(t, err, ErrNoFreeCells, "unknown cells are not free")

	_, err = BuildDistanceField(&OccupancyMap{Width: 2, Height: 2, Resolution: 1, Data: []int8{0}})
	assert.ErrorIs(t, err, ErrInvalidMap)

	_, err = BuildDistanceField(nil)
	assert.ErrorIs(t, err, ErrInvalidMap)
}

func TestDistanceField_Stats(t *testing.T) {
	m := boxMap(6, 6, 0.5, Point{})
	m.Set(2, 2, CellUnknown)
	df, err := BuildDistanceField(m)
	require.NoError(t, err)

	s := df.Stats()
	assert.Equal(t, 6, s.Width)
	assert.Equal(t, 6, s.Height)
	assert.Equal(t, 20, s.OccupiedCells)
	assert.Equal(t, 15, s.FreeCells)
	assert.Equal(t, 1, s.UnknownCells)
	assert.InDelta(t, 1.0, s.MaxDistance, 1e-12)
	assert.Greater(t, s.MeanDistance, 0.0)
	assert.LessOrEqual(t, s.MeanDistance, s.MaxDistance)
}
