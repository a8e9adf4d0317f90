// Package synthetic generates deterministic sensing cycles for demos and
// tests: a platform driving a circuit through a field of boxes, scanned by
// a ring of beams.
package synthetic

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/occupancy.map/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pointcloud"
)

// Box is an axis-aligned obstacle standing on the ground.
type Box struct {
	MinX, MinY float64
	MaxX, MaxY float64
	HeightM    float64
}

// Contains reports whether (x, y) is inside the footprint.
func (b Box) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// intersect returns the distance along the unit direction (dx, dy) from
// (ox, oy) to the box footprint, or false when the ray misses.
func (b Box) intersect(ox, oy, dx, dy float64) (float64, bool) {
	tmin, tmax := 0.0, math.Inf(1)
	for _, s := range [2]struct{ o, d, lo, hi float64 }{
		{ox, dx, b.MinX, b.MaxX},
		{oy, dy, b.MinY, b.MaxY},
	} {
		if math.Abs(s.d) < 1e-12 {
			if s.o < s.lo || s.o > s.hi {
				return 0, false
			}
			continue
		}
		t1 := (s.lo - s.o) / s.d
		t2 := (s.hi - s.o) / s.d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// Generator produces one pipeline.Cycle per call to Next.
type Generator struct {
	// Configuration
	Boxes         []Box
	Beams         int           // beams per cycle
	MaxRangeM     float64       // beyond this a beam returns nothing useful
	CircuitRadius float64       // metres, radius of the platform's path
	SpeedMPS      float64       // platform speed
	Period        time.Duration // time between cycles
	SensorHeightM float64       // scan origin above the platform base
	OverhangRatio float64       // fraction of free beams that also return an overhang point
	PoseDropout   float64       // probability a cycle arrives without poses

	rng   *rand.Rand
	start time.Time
	n     int
}

// NewGenerator creates a generator with a seeded random source and a scene
// of boxes scattered around the circuit.
func NewGenerator(seed int64, boxes int) *Generator {
	g := &Generator{
		Beams:         360,
		MaxRangeM:     30,
		CircuitRadius: 15,
		SpeedMPS:      3,
		Period:        100 * time.Millisecond,
		SensorHeightM: 1.8,
		OverhangRatio: 0.05,
		rng:           rand.New(rand.NewSource(seed)),
		start:         time.Unix(0, 0).UTC(),
	}
	g.Boxes = g.scatter(boxes)
	return g
}

// scatter places boxes off the circuit so the platform never drives through
// one.
func (g *Generator) scatter(n int) []Box {
	out := make([]Box, 0, n)
	for len(out) < n {
		a := g.rng.Float64() * 2 * math.Pi
		r := g.CircuitRadius + (g.rng.Float64()*2-1)*12
		if math.Abs(r-g.CircuitRadius) < 3 {
			continue
		}
		cx, cy := r*math.Cos(a), r*math.Sin(a)
		hw := 0.5 + g.rng.Float64()*1.5
		hh := 0.5 + g.rng.Float64()*1.5
		out = append(out, Box{
			MinX: cx - hw, MaxX: cx + hw,
			MinY: cy - hh, MaxY: cy + hh,
			HeightM: 0.5 + g.rng.Float64()*2,
		})
	}
	return out
}

// PoseAt returns the platform pose after the given number of cycles.
func (g *Generator) PoseAt(cycle int) pointcloud.Pose {
	if g.CircuitRadius <= 0 {
		return pointcloud.Pose{}
	}
	dist := g.SpeedMPS * g.Period.Seconds() * float64(cycle)
	theta := dist / g.CircuitRadius
	return pointcloud.NewPose(
		g.CircuitRadius*math.Cos(theta),
		g.CircuitRadius*math.Sin(theta),
		0,
		theta+math.Pi/2,
	)
}

// Next returns the next cycle. Points are in the map frame.
func (g *Generator) Next() pipeline.Cycle {
	cycle := g.n
	g.n++
	base := g.PoseAt(cycle)
	sensor := r3.Add(base.Position, r3.Vec{Z: g.SensorHeightM})

	c := pipeline.Cycle{Stamp: g.start.Add(time.Duration(cycle) * g.Period)}
	for i := 0; i < g.Beams; i++ {
		a := base.Yaw + 2*math.Pi*(float64(i)+g.rng.Float64()*0.5)/float64(g.Beams)
		dx, dy := math.Cos(a), math.Sin(a)

		hit, box := g.nearest(sensor.X, sensor.Y, dx, dy)
		if box != nil && hit <= g.MaxRangeM {
			p := r3.Vec{X: sensor.X + hit*dx, Y: sensor.Y + hit*dy, Z: base.Position.Z + g.rng.Float64()*box.HeightM}
			c.Obstacle = append(c.Obstacle, p)
			c.Raw = append(c.Raw, p)
			continue
		}

		// Ground return somewhere before the first box or max range.
		reach := g.MaxRangeM * 1.2
		if box != nil {
			reach = hit
		}
		d := reach * (0.3 + 0.7*g.rng.Float64())
		c.Raw = append(c.Raw, r3.Vec{X: sensor.X + d*dx, Y: sensor.Y + d*dy, Z: base.Position.Z})
		if g.rng.Float64() < g.OverhangRatio {
			c.Raw = append(c.Raw, r3.Vec{X: sensor.X + d*dx, Y: sensor.Y + d*dy, Z: base.Position.Z + 4})
			c.Obstacle = append(c.Obstacle, r3.Vec{X: sensor.X + d*dx, Y: sensor.Y + d*dy, Z: base.Position.Z + 4})
		}
	}

	if g.PoseDropout > 0 && g.rng.Float64() < g.PoseDropout {
		return c
	}
	scan := pointcloud.Pose{Position: sensor, Yaw: base.Yaw}
	c.ScanOrigin = &scan
	c.GridOrigin = &base
	c.RobotPose = &base
	return c
}

func (g *Generator) nearest(ox, oy, dx, dy float64) (float64, *Box) {
	best := math.Inf(1)
	var hit *Box
	for i := range g.Boxes {
		if t, ok := g.Boxes[i].intersect(ox, oy, dx, dy); ok && t < best {
			best, hit = t, &g.Boxes[i]
		}
	}
	return best, hit
}

// Cycles returns how many cycles have been generated.
func (g *Generator) Cycles() int { return g.n }
