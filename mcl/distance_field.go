package mcl

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// OutOfMap is returned by Query for points outside the grid. Valid
// distances are never negative, so callers can test d < 0.
const OutOfMap = -1.0

var (
	// ErrNoOccupiedCells is returned when a map has nothing to measure against
	ErrNoOccupiedCells = errors.New("distance field: map has no occupied cells")

	// ErrNoFreeCells is returned when a map leaves nowhere to place particles
	ErrNoFreeCells = errors.New("distance field: map has no free cells")
)

// DistanceField holds, for every map cell, the distance in meters to the
// nearest occupied cell, plus the catalog of free cells. It is read-only
// after BuildDistanceField and safe for concurrent readers.
type DistanceField struct {
	grid    *OccupancyMap
	dist    []float64
	free    []Cell
	maxDist float64
}

// BuildDistanceField indexes the occupied cells of m in a k-d tree and
// answers a nearest-neighbour query for every cell.
func BuildDistanceField(m *OccupancyMap) (*DistanceField, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("distance field: %w", err)
	}

	var occupied kdtree.Points
	var free []Cell
	for j := 0; j < m.Height; j++ {
		for i := 0; i < m.Width; i++ {
			switch v := m.At(i, j); {
			case v > 0:
				occupied = append(occupied, kdtree.Point{float64(i), float64(j)})
			case v == CellFree:
				free = append(free, Cell{I: i, J: j})
			}
		}
	}
	if len(occupied) == 0 {
		return nil, ErrNoOccupiedCells
	}
	if len(free) == 0 {
		return nil, ErrNoFreeCells
	}

	tree := kdtree.New(occupied, false)

	df := &DistanceField{
		grid: m,
		dist: make([]float64, len(m.Data)),
		free: free,
	}
	q := make(kdtree.Point, 2)
	for j := 0; j < m.Height; j++ {
		for i := 0; i < m.Width; i++ {
			idx := m.Index(i, j)
			if m.Data[idx] > 0 {
				continue
			}
			q[0], q[1] = float64(i), float64(j)
			_, sq := tree.Nearest(q)
			d := math.Sqrt(sq) * m.Resolution
			df.dist[idx] = d
			if d > df.maxDist {
				df.maxDist = d
			}
		}
	}
	return df, nil
}

// Query returns the obstacle distance at world point (x, y), or OutOfMap
// when the point is outside the grid.
func (df *DistanceField) Query(x, y float64) float64 {
	d, ok := df.Lookup(x, y)
	if !ok {
		return OutOfMap
	}
	return d
}

// Lookup is Query with an explicit in-map flag
func (df *DistanceField) Lookup(x, y float64) (float64, bool) {
	c, ok := df.grid.WorldToCell(x, y)
	if !ok {
		return 0, false
	}
	return df.dist[df.grid.Index(c.I, c.J)], true
}

// At returns the distance stored for cell c
func (df *DistanceField) At(c Cell) float64 {
	return df.dist[df.grid.Index(c.I, c.J)]
}

// FreeCells returns the free-cell catalog. The slice must not be modified.
func (df *DistanceField) FreeCells() []Cell {
	return df.free
}

// CellCenter converts a cell index to world coordinates
func (df *DistanceField) CellCenter(c Cell) Point {
	return df.grid.CellCenter(c)
}

// Map returns the occupancy map the field was built from
func (df *DistanceField) Map() *OccupancyMap {
	return df.grid
}

// MaxDistance is the largest distance anywhere in the field
func (df *DistanceField) MaxDistance() float64 {
	return df.maxDist
}

// FieldStats summarizes a distance field for logging and the CLI
type FieldStats struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Resolution    float64 `json:"resolution"`
	OccupiedCells int     `json:"occupiedCells"`
	FreeCells     int     `json:"freeCells"`
	UnknownCells  int     `json:"unknownCells"`
	MaxDistance   float64 `json:"maxDistance"`
	MeanDistance  float64 `json:"meanDistance"` // over free cells
}

// Stats computes summary statistics
func (df *DistanceField) Stats() FieldStats {
	occ, free, unknown := df.grid.Counts()
	var sum float64
	for _, c := range df.free {
		sum += df.At(c)
	}
	return FieldStats{
		Width:         df.grid.Width,
		Height:        df.grid.Height,
		Resolution:    df.grid.Resolution,
		OccupiedCells: occ,
		FreeCells:     free,
		UnknownCells:  unknown,
		MaxDistance:   df.maxDist,
		MeanDistance:  sum / float64(len(df.free)),
	}
}
