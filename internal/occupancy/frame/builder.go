package frame

import (
	"fmt"
	"sync"

	"github.com/banshee-data/occupancy.map/internal/occupancy/costmap"
	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pointcloud"
	"github.com/banshee-data/occupancy.map/internal/occupancy/raytrace"
)

// minPointsPerWorker keeps tiny clouds on the serial path, where spinning up
// goroutines and partial frames costs more than it saves.
const minPointsPerWorker = 512

// Config describes the observation grid and ray casting limits.
type Config struct {
	Width      int     // cells
	Height     int     // cells
	Resolution float64 // metres per cell
	MaxRange   float64 // metres; rays are clipped here
	Workers    int     // partial frames cast in parallel; <= 1 casts serially
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("frame: grid must be at least 1x1 cells, got %dx%d", c.Width, c.Height)
	}
	if !(c.Resolution > 0) {
		return fmt.Errorf("frame: resolution must be positive, got %v", c.Resolution)
	}
	if !(c.MaxRange > 0) {
		return fmt.Errorf("frame: max range must be positive, got %v", c.MaxRange)
	}
	if c.Workers < 0 {
		return fmt.Errorf("frame: workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// Input is one cycle's clouds and poses, already resolved into the world frame.
type Input struct {
	Raw        pointcloud.Cloud
	Obstacle   pointcloud.Cloud
	ScanOrigin pointcloud.Pose // where rays start
	GridOrigin pointcloud.Pose // centre of the frame
}

// Builder turns an Input into a Frame. It is safe for concurrent use.
type Builder struct {
	cfg    Config
	tracer *raytrace.Tracer
}

// NewBuilder validates cfg and returns a Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr, err := raytrace.NewTracer(cfg.MaxRange)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, tracer: tr}, nil
}

// Config returns the builder configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// FrameOrigin returns the lattice-aligned corner of a frame centred on
// (cx, cy). Every frame built by b shares this lattice.
func (b *Builder) FrameOrigin(cx, cy float64) (x, y float64) {
	halfX := float64(b.cfg.Width) * b.cfg.Resolution / 2
	halfY := float64(b.cfg.Height) * b.cfg.Resolution / 2
	return costmap.SnapToLattice(cx-halfX, b.cfg.Resolution), costmap.SnapToLattice(cy-halfY, b.cfg.Resolution)
}

// Build casts every raw point and then every obstacle point from the scan
// origin into a fresh all-unknown frame centred on the grid origin. Empty
// clouds give an all-unknown frame.
func (b *Builder) Build(in Input) *Frame {
	grid := b.emptyGrid(in.GridOrigin)

	total := len(in.Raw) + len(in.Obstacle)
	workers := b.cfg.Workers
	if workers > 1 && total >= workers*minPointsPerWorker {
		b.castParallel(grid, in, workers)
	} else {
		b.castRange(grid, in, 0, total)
	}
	return &Frame{grid: grid}
}

func (b *Builder) emptyGrid(center pointcloud.Pose) *costmap.Grid[costvalue.Observation] {
	// Config was validated in NewBuilder, so New cannot fail here.
	g, _ := costmap.New(b.cfg.Width, b.cfg.Height, b.cfg.Resolution, costvalue.Unknown)
	ox, oy := b.FrameOrigin(center.Position.X, center.Position.Y)
	g.UpdateOrigin(ox, oy)
	return g
}

// castRange casts rays [lo, hi) of the virtual sequence raw ++ obstacle.
func (b *Builder) castRange(g *costmap.Grid[costvalue.Observation], in Input, lo, hi int) {
	sx, sy := in.ScanOrigin.Position.X, in.ScanOrigin.Position.Y
	nRaw := len(in.Raw)
	for k := lo; k < hi; k++ {
		if k < nRaw {
			p := in.Raw[k]
			b.tracer.Cast(g, sx, sy, p.X, p.Y, raytrace.Raw)
			continue
		}
		p := in.Obstacle[k-nRaw]
		b.tracer.Cast(g, sx, sy, p.X, p.Y, raytrace.Obstacle)
	}
}

// castParallel splits the rays across workers, each casting into a private
// partial frame, then reduces the partials into g with costvalue.Merge.
// Merge is order independent, so the result equals the serial cast.
func (b *Builder) castParallel(g *costmap.Grid[costvalue.Observation], in Input, workers int) {
	total := len(in.Raw) + len(in.Obstacle)
	chunk := (total + workers - 1) / workers

	partials := make([]*costmap.Grid[costvalue.Observation], workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, total)
		if lo >= hi {
			continue
		}
		partials[w] = g.Clone()
		wg.Add(1)
		go func(part *costmap.Grid[costvalue.Observation], lo, hi int) {
			defer wg.Done()
			b.castRange(part, in, lo, hi)
		}(partials[w], lo, hi)
	}
	wg.Wait()

	for _, part := range partials {
		if part == nil {
			continue
		}
		for i := 0; i < g.Len(); i++ {
			g.SetAt(i, costvalue.Merge(g.At(i), part.At(i)))
		}
	}
}
