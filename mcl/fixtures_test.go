package mcl

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// boxMap returns a w×h free grid with a one-cell wall around the edge
func boxMap(w, h int, res float64, origin Point) *OccupancyMap {
	m := NewOccupancyMap(w, h, res, origin, CellFree)
	for i := 0; i < w; i++ {
		m.Set(i, 0, CellOccupied)
		m.Set(i, h-1, CellOccupied)
	}
	for j := 0; j < h; j++ {
		m.Set(0, j, CellOccupied)
		m.Set(w-1, j, CellOccupied)
	}
	return m
}

func boxField(t *testing.T, w, h int) *DistanceField {
	t.Helper()
	df, err := BuildDistanceField(boxMap(w, h, 1, Point{}))
	require.NoError(t, err)
	return df
}

func testSource() rand.Source {
	return rand.NewSource(42)
}
