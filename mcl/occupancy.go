package mcl

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// Cell values follow the nav_msgs/OccupancyGrid convention.
const (
	CellFree     int8 = 0
	CellOccupied int8 = 100
	CellUnknown  int8 = -1
)

// ErrInvalidMap is returned when an occupancy map fails validation
var ErrInvalidMap = errors.New("invalid occupancy map")

// OccupancyMap is a static row-major occupancy grid. Values > 0 are
// occupied, 0 is free and < 0 is unknown. Cell (i, j) lives at index
// i + j*Width; row 0 is the bottom of the map.
type OccupancyMap struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"` // meters per cell
	Origin     Point   `json:"origin"`     // world position of cell (0, 0)'s corner
	Data       []int8  `json:"data"`
}

// Validate checks that the grid dimensions and data agree
func (m *OccupancyMap) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil map", ErrInvalidMap)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidMap, m.Width, m.Height)
	}
	if !(m.Resolution > 0) {
		return fmt.Errorf("%w: resolution %v", ErrInvalidMap, m.Resolution)
	}
	if len(m.Data) != m.Width*m.Height {
		return fmt.Errorf("%w: %d cells for %dx%d grid", ErrInvalidMap, len(m.Data), m.Width, m.Height)
	}
	return nil
}

// Index returns the row-major index of cell (i, j)
func (m *OccupancyMap) Index(i, j int) int {
	return i + j*m.Width
}

// InGrid reports whether (i, j) is a valid cell index
func (m *OccupancyMap) InGrid(i, j int) bool {
	return i >= 0 && i < m.Width && j >= 0 && j < m.Height
}

// At returns the raw value of cell (i, j)
func (m *OccupancyMap) At(i, j int) int8 {
	return m.Data[m.Index(i, j)]
}

// IsOccupied reports whether cell (i, j) holds an obstacle
func (m *OccupancyMap) IsOccupied(i, j int) bool {
	return m.At(i, j) > 0
}

// IsFree reports whether cell (i, j) is known free space
func (m *OccupancyMap) IsFree(i, j int) bool {
	return m.At(i, j) == CellFree
}

// WorldToCell converts world meters to a cell index, truncating toward
// zero. ok is false when the point falls outside the grid.
func (m *OccupancyMap) WorldToCell(x, y float64) (c Cell, ok bool) {
	fx := (x - m.Origin.X) / m.Resolution
	fy := (y - m.Origin.Y) / m.Resolution
	// int() truncates toward zero, so -0.5 would land in column 0
	if fx < 0 || fy < 0 {
		return Cell{}, false
	}
	c = Cell{I: int(fx), J: int(fy)}
	return c, m.InGrid(c.I, c.J)
}

// CellCenter returns the world position of the centre of a cell
func (m *OccupancyMap) CellCenter(c Cell) Point {
	return Point{
		X: m.Origin.X + (float64(c.I)+0.5)*m.Resolution,
		Y: m.Origin.Y + (float64(c.J)+0.5)*m.Resolution,
	}
}

// Bounds returns the world-coordinate bounding box covered by the grid
func (m *OccupancyMap) Bounds() orb.Bound {
	return orb.Bound{
		Min: orb.Point{m.Origin.X, m.Origin.Y},
		Max: orb.Point{
			m.Origin.X + float64(m.Width)*m.Resolution,
			m.Origin.Y + float64(m.Height)*m.Resolution,
		},
	}
}

// Counts tallies occupied, free and unknown cells
func (m *OccupancyMap) Counts() (occupied, free, unknown int) {
	for _, v := range m.Data {
		switch {
		case v > 0:
			occupied++
		case v == 0:
			free++
		default:
			unknown++
		}
	}
	return occupied, free, unknown
}

// NewOccupancyMap allocates a grid with every cell set to fill
func NewOccupancyMap(width, height int, resolution float64, origin Point, fill int8) *OccupancyMap {
	data := make([]int8, width*height)
	for i := range data {
		data[i] = fill
	}
	return &OccupancyMap{
		Width:      width,
		Height:     height,
		Resolution: resolution,
		Origin:     origin,
		Data:       data,
	}
}

// Set writes value v into cell (i, j). Out-of-grid writes are ignored.
func (m *OccupancyMap) Set(i, j int, v int8) {
	if !m.InGrid(i, j) {
		return
	}
	m.Data[m.Index(i, j)] = v
}
