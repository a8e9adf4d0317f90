package raytrace

import "github.com/banshee-data/occupancy.map/internal/occupancy/costmap"

// Line visits every cell of the Bresenham line from 'from' to 'to', both
// inclusive, in order. terminal is true only for the last cell. When from
// equals to, visit is called once with terminal set.
//
// The traversal uses integer arithmetic only, so the visited cells depend on
// the two endpoints and nothing else.
func Line(from, to costmap.Index, visit func(i costmap.Index, terminal bool)) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}

	err := dx + dy
	x, y := from.X, from.Y
	for {
		if x == to.X && y == to.Y {
			visit(costmap.Index{X: x, Y: y}, true)
			return
		}
		visit(costmap.Index{X: x, Y: y}, false)
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
