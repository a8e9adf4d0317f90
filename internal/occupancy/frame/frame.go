package frame

import (
	"github.com/banshee-data/occupancy.map/internal/occupancy/costmap"
	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
)

// Frame is an observation grid. It exposes read-only access; the grid it
// wraps is owned by the Frame and never handed out.
type Frame struct {
	grid *costmap.Grid[costvalue.Observation]
}

func (f *Frame) Width() int          { return f.grid.Width() }
func (f *Frame) Height() int         { return f.grid.Height() }
func (f *Frame) Resolution() float64 { return f.grid.Resolution() }

// Origin returns the world position of the corner of cell [0,0].
func (f *Frame) Origin() (x, y float64) { return f.grid.Origin() }

// At returns the observation for cell i, Unknown when out of bounds.
func (f *Frame) At(i costmap.Index) costvalue.Observation {
	v, _ := f.grid.Get(i)
	return v
}

// AtOffset returns the observation at a flat row-major offset.
func (f *Frame) AtOffset(offset int) costvalue.Observation {
	return f.grid.At(offset)
}

// Len returns the number of cells.
func (f *Frame) Len() int { return f.grid.Len() }

// WorldToCell converts a world position to a cell of the frame.
func (f *Frame) WorldToCell(wx, wy float64) (costmap.Index, bool) {
	return f.grid.WorldToCell(wx, wy)
}

// CellToWorld returns the centre of cell i.
func (f *Frame) CellToWorld(i costmap.Index) (wx, wy float64, ok bool) {
	return f.grid.CellToWorld(i)
}

// Range calls fn for every cell in row-major order.
func (f *Frame) Range(fn func(i costmap.Index, o costvalue.Observation)) {
	f.grid.Range(fn)
}

// Counts tallies the cells by observation.
type Counts struct {
	Unknown  int
	Free     int
	Occupied int
}

// Counts returns how many cells hold each observation.
func (f *Frame) Counts() Counts {
	var c Counts
	for i := 0; i < f.grid.Len(); i++ {
		switch f.grid.At(i) {
		case costvalue.Free:
			c.Free++
		case costvalue.Occupied:
			c.Occupied++
		default:
			c.Unknown++
		}
	}
	return c
}

// Costs returns the published value of every cell, row-major.
func (f *Frame) Costs() []int8 {
	out := make([]int8, f.grid.Len())
	for i := range out {
		out[i] = costvalue.FromObservation(f.grid.At(i))
	}
	return out
}
