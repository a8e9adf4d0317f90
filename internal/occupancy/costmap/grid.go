package costmap

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidDimensions is returned for non-positive widths or heights.
	ErrInvalidDimensions = errors.New("costmap: width and height must be positive")
	// ErrInvalidResolution is returned for non-positive or non-finite resolutions.
	ErrInvalidResolution = errors.New("costmap: resolution must be positive")
)

// Index addresses a cell by column (X) and row (Y).
type Index struct {
	X, Y int
}

// Grid is a row-major width x height array of cells with a world-space origin
// at the corner of cell [0,0]. The zero value is not usable; call New.
type Grid[T any] struct {
	width      int
	height     int
	resolution float64
	originX    float64
	originY    float64
	unknown    T
	cells      []T
}

// New allocates a grid with every cell set to unknown.
func New[T any](width, height int, resolution float64, unknown T) (*Grid[T], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, width, height)
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidResolution, resolution)
	}
	g := &Grid[T]{
		width:      width,
		height:     height,
		resolution: resolution,
		unknown:    unknown,
		cells:      make([]T, width*height),
	}
	g.Reset()
	return g, nil
}

// DimensionsFromLength returns the number of cells needed to cover length
// metres at the given resolution, round(length/resolution).
func DimensionsFromLength(length, resolution float64) (int, error) {
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidResolution, resolution)
	}
	if !(length > 0) || math.IsInf(length, 0) {
		return 0, fmt.Errorf("costmap: length must be positive, got %v", length)
	}
	n := int(math.Round(length / resolution))
	if n < 1 {
		return 0, fmt.Errorf("%w: length %v at resolution %v gives %d cells", ErrInvalidDimensions, length, resolution, n)
	}
	return n, nil
}

// SnapToLattice rounds v down to a multiple of resolution. Grids whose
// origins are snapped this way line up cell for cell.
func SnapToLattice(v, resolution float64) float64 {
	return math.Floor(v/resolution) * resolution
}

func (g *Grid[T]) Width() int          { return g.width }
func (g *Grid[T]) Height() int         { return g.height }
func (g *Grid[T]) Resolution() float64 { return g.resolution }
func (g *Grid[T]) Unknown() T          { return g.unknown }

// Origin returns the world position of the corner of cell [0,0].
func (g *Grid[T]) Origin() (x, y float64) {
	return g.originX, g.originY
}

// SizeInMeters returns the world extent covered by the grid.
func (g *Grid[T]) SizeInMeters() (x, y float64) {
	return float64(g.width) * g.resolution, float64(g.height) * g.resolution
}

// InBounds reports whether i addresses a cell of the grid.
func (g *Grid[T]) InBounds(i Index) bool {
	return i.X >= 0 && i.X < g.width && i.Y >= 0 && i.Y < g.height
}

// WorldToCellUnbounded converts a world position to a cell index without
// checking bounds. Used by ray casting, which clips per cell.
func (g *Grid[T]) WorldToCellUnbounded(wx, wy float64) Index {
	return Index{
		X: int(math.Floor((wx - g.originX) / g.resolution)),
		Y: int(math.Floor((wy - g.originY) / g.resolution)),
	}
}

// WorldToCell converts a world position to a cell index. ok is false when the
// position falls outside the grid.
func (g *Grid[T]) WorldToCell(wx, wy float64) (i Index, ok bool) {
	if math.IsNaN(wx) || math.IsNaN(wy) {
		return Index{}, false
	}
	if wx < g.originX || wy < g.originY {
		return Index{}, false
	}
	i = g.WorldToCellUnbounded(wx, wy)
	return i, g.InBounds(i)
}

// CellToWorld returns the world position of the centre of cell i.
func (g *Grid[T]) CellToWorld(i Index) (wx, wy float64, ok bool) {
	if !g.InBounds(i) {
		return 0, 0, false
	}
	wx = g.originX + (float64(i.X)+0.5)*g.resolution
	wy = g.originY + (float64(i.Y)+0.5)*g.resolution
	return wx, wy, true
}

// Get returns the value of cell i. ok is false when i is out of bounds.
func (g *Grid[T]) Get(i Index) (v T, ok bool) {
	if !g.InBounds(i) {
		return g.unknown, false
	}
	return g.cells[i.Y*g.width+i.X], true
}

// Set writes cell i. Writes outside the grid are dropped and reported as
// false; sensor returns close to the edge routinely land there.
func (g *Grid[T]) Set(i Index, v T) bool {
	if !g.InBounds(i) {
		return false
	}
	g.cells[i.Y*g.width+i.X] = v
	return true
}

// At returns the value at a flat row-major offset.
func (g *Grid[T]) At(offset int) T {
	return g.cells[offset]
}

// SetAt writes the value at a flat row-major offset.
func (g *Grid[T]) SetAt(offset int, v T) {
	g.cells[offset] = v
}

// Len returns width*height.
func (g *Grid[T]) Len() int {
	return len(g.cells)
}

// Range calls fn for every cell in row-major order.
func (g *Grid[T]) Range(fn func(i Index, v T)) {
	for y := 0; y < g.height; y++ {
		row := g.cells[y*g.width : (y+1)*g.width]
		for x, v := range row {
			fn(Index{X: x, Y: y}, v)
		}
	}
}

// Cells returns a copy of the cell array.
func (g *Grid[T]) Cells() []T {
	out := make([]T, len(g.cells))
	copy(out, g.cells)
	return out
}

// Reset sets every cell to unknown without moving the grid.
func (g *Grid[T]) Reset() {
	for i := range g.cells {
		g.cells[i] = g.unknown
	}
}

// Clone returns a deep copy of g.
func (g *Grid[T]) Clone() *Grid[T] {
	c := *g
	c.cells = g.Cells()
	return &c
}

// SameLayout reports whether two grids have identical dimensions and
// resolution, which is what cell-for-cell operations need.
func SameLayout[A, B any](a *Grid[A], b *Grid[B]) bool {
	return a.width == b.width && a.height == b.height && a.resolution == b.resolution
}

// CellShift returns the whole-cell displacement from the current origin to
// (newX, newY), rounded to the nearest cell.
func (g *Grid[T]) CellShift(newX, newY float64) (dx, dy int) {
	dx = int(math.Round((newX - g.originX) / g.resolution))
	dy = int(math.Round((newY - g.originY) / g.resolution))
	return dx, dy
}

// UpdateOrigin moves the grid so that its origin lies on the cell lattice
// nearest to (newX, newY). Cells that stay inside the grid keep their value;
// cells entering the grid are set to unknown. It returns the applied shift.
func (g *Grid[T]) UpdateOrigin(newX, newY float64) (dx, dy int) {
	dx, dy = g.CellShift(newX, newY)
	if dx == 0 && dy == 0 {
		return 0, 0
	}

	next := make([]T, len(g.cells))
	for i := range next {
		next[i] = g.unknown
	}

	// New cell x maps to old cell x+dx. Copy the overlapping run per row.
	x0 := max(0, -dx)
	x1 := min(g.width, g.width-dx)
	if x0 < x1 {
		for y := 0; y < g.height; y++ {
			oy := y + dy
			if oy < 0 || oy >= g.height {
				continue
			}
			copy(next[y*g.width+x0:y*g.width+x1], g.cells[oy*g.width+x0+dx:oy*g.width+x1+dx])
		}
	}

	g.cells = next
	g.originX += float64(dx) * g.resolution
	g.originY += float64(dy) * g.resolution
	return dx, dy
}
