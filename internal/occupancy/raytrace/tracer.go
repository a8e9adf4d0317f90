package raytrace

import (
	"fmt"
	"math"

	"github.com/banshee-data/occupancy.map/internal/occupancy/costmap"
	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
)

// Class tells the tracer which cloud a point came from.
type Class uint8

const (
	// Raw points confirm free space up to the return but assert nothing
	// about the return itself.
	Raw Class = iota
	// Obstacle points mark their terminal cell occupied when within range.
	Obstacle
)

func (c Class) String() string {
	if c == Obstacle {
		return "obstacle"
	}
	return "raw"
}

// ObservationGrid is the grid type rays are cast into.
type ObservationGrid = costmap.Grid[costvalue.Observation]

// CastResult describes one cast.
type CastResult struct {
	Cells   int  // cells visited, terminal included
	Clipped bool // target was beyond MaxRange and pulled back onto it
	OffGrid bool // an endpoint lay outside the grid and the walk was cut to its edge
	Skipped bool // non-finite input, nothing was written
}

// Tracer casts rays of bounded length. It holds no mutable state and may be
// shared between goroutines.
type Tracer struct {
	maxRange float64
}

// NewTracer returns a Tracer that clips rays at maxRange metres.
func NewTracer(maxRange float64) (*Tracer, error) {
	if !(maxRange > 0) || math.IsInf(maxRange, 0) {
		return nil, fmt.Errorf("raytrace: max range must be positive, got %v", maxRange)
	}
	return &Tracer{maxRange: maxRange}, nil
}

// MaxRange returns the clipping distance in metres.
func (t *Tracer) MaxRange() float64 {
	return t.maxRange
}

// Cast walks from the origin cell to the target cell in the XY plane.
// Every cell before the terminal is marked free. The terminal is marked
// occupied only for an Obstacle point within range; raw points and clipped
// rays mark it free. Marks are merged with the existing cell value, so an
// occupied cell is never downgraded within a frame. The walk is cut to the
// grid rectangle, so a cast never visits more than width+height cells; a ray
// cut short of its target marks its last in-grid cell free.
func (t *Tracer) Cast(g *ObservationGrid, originX, originY, targetX, targetY float64, class Class) CastResult {
	if !finite(originX, originY, targetX, targetY) {
		return CastResult{Skipped: true}
	}

	var res CastResult
	ddx, ddy := targetX-originX, targetY-originY
	if dist := math.Hypot(ddx, ddy); dist > t.maxRange {
		scale := t.maxRange / dist
		targetX = originX + ddx*scale
		targetY = originY + ddy*scale
		res.Clipped = true
	}

	terminal := costvalue.Free
	if class == Obstacle && !res.Clipped {
		terminal = costvalue.Occupied
	}

	from := g.WorldToCellUnbounded(originX, originY)
	to := g.WorldToCellUnbounded(targetX, targetY)
	if !g.InBounds(from) || !g.InBounds(to) {
		res.OffGrid = true
		if !g.InBounds(to) {
			terminal = costvalue.Free
		}
		x0, y0, x1, y1, ok := clipToGrid(g, originX, originY, targetX, targetY)
		if !ok {
			return res
		}
		from = clampIndex(g, g.WorldToCellUnbounded(x0, y0))
		to = clampIndex(g, g.WorldToCellUnbounded(x1, y1))
	}
	Line(from, to, func(i costmap.Index, last bool) {
		res.Cells++
		if last {
			mark(g, i, terminal)
			return
		}
		mark(g, i, costvalue.Free)
	})
	return res
}

// clipToGrid cuts the segment to the grid rectangle (Liang-Barsky). ok is
// false when the segment misses the grid.
func clipToGrid(g *ObservationGrid, x0, y0, x1, y1 float64) (cx0, cy0, cx1, cy1 float64, ok bool) {
	minX, minY := g.Origin()
	w, h := g.SizeInMeters()
	dx, dy := x1-x0, y1-y0

	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, x0 - minX},
		{dx, minX + w - x0},
		{-dy, y0 - minY},
		{dy, minY + h - y0},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, r)
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// clampIndex pulls an index that landed on the far edge of the rectangle
// back into the grid.
func clampIndex(g *ObservationGrid, i costmap.Index) costmap.Index {
	i.X = min(max(i.X, 0), g.Width()-1)
	i.Y = min(max(i.Y, 0), g.Height()-1)
	return i
}

func mark(g *ObservationGrid, i costmap.Index, o costvalue.Observation) {
	cur, ok := g.Get(i)
	if !ok {
		return
	}
	g.Set(i, costvalue.Merge(cur, o))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
