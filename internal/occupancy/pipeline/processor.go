package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/occupancy.map/internal/occupancy/bbf"
	"github.com/banshee-data/occupancy.map/internal/occupancy/frame"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pointcloud"
	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
	"github.com/banshee-data/occupancy.map/internal/timeutil"
)

// ErrPoseUnavailable is returned when a cycle arrives without a resolved scan
// or grid origin. The cycle is skipped and the belief grid is unchanged.
var ErrPoseUnavailable = errors.New("pipeline: pose unavailable")

// Cycle is one sensing cycle's input, already in the map frame. A nil scan
// or grid origin means the collaborator could not resolve it. RobotPose is
// the platform base pose; it supplies the published origin height and falls
// back to GridOrigin when nil.
type Cycle struct {
	Stamp      time.Time
	Obstacle   pointcloud.Cloud
	Raw        pointcloud.Cloud
	ScanOrigin *pointcloud.Pose
	GridOrigin *pointcloud.Pose
	RobotPose  *pointcloud.Pose
}

// Sink receives every published snapshot. Sinks must not modify it.
type Sink interface {
	Publish(s *snapshot.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s *snapshot.Snapshot) error

func (f SinkFunc) Publish(s *snapshot.Snapshot) error { return f(s) }

// Stats reports processor activity.
type Stats struct {
	Mode           Mode          `json:"mode"`
	Processed      uint64        `json:"processed"`
	Skipped        uint64        `json:"skipped"`
	SinkErrors     uint64        `json:"sink_errors"`
	Sequence       uint64        `json:"sequence"`
	LastStamp      time.Time     `json:"last_stamp"`
	LastProcessing time.Duration `json:"last_processing_ns"`
	LastCyclic     time.Duration `json:"last_cyclic_ns"`
}

// Processor runs cycles one at a time against a single belief grid.
type Processor struct {
	cfg     Config
	builder *frame.Builder
	clock   timeutil.Clock

	// mu serialises Process and every other belief mutation.
	mu        sync.Mutex
	updater   *bbf.Updater
	seq       uint64
	lastStart time.Time

	// stateMu guards what readers see while a cycle is running.
	stateMu sync.RWMutex
	sinks   []Sink
	latest  *snapshot.Snapshot
	stats   Stats
}

// NewProcessor validates cfg and allocates the belief grid. A nil clock uses
// the wall clock.
func NewProcessor(cfg Config, clock timeutil.Clock) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := frame.NewBuilder(cfg.Frame)
	if err != nil {
		return nil, err
	}
	u, err := bbf.NewUpdater(cfg.Frame.Width, cfg.Frame.Height, cfg.Frame.Resolution, cfg.BBF)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	diagf("mode=%s grid=%dx%d@%.3fm max_range=%.1fm workers=%d",
		cfg.Mode, cfg.Frame.Width, cfg.Frame.Height, cfg.Frame.Resolution, cfg.Frame.MaxRange, cfg.Frame.Workers)
	return &Processor{
		cfg:     cfg,
		builder: b,
		clock:   clock,
		updater: u,
		stats:   Stats{Mode: cfg.Mode},
	}, nil
}

// Config returns the processor configuration.
func (p *Processor) Config() Config { return p.cfg }

// AddSink registers a sink. Sinks are called in registration order.
func (p *Processor) AddSink(s Sink) {
	p.stateMu.Lock()
	p.sinks = append(p.sinks, s)
	p.stateMu.Unlock()
}

// Process runs one cycle and returns the published snapshot. Sink failures
// are logged and counted but do not fail the cycle.
func (p *Processor) Process(c Cycle) (*snapshot.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.clock.Now()
	var cyclic time.Duration
	if !p.lastStart.IsZero() {
		cyclic = start.Sub(p.lastStart)
	}
	p.lastStart = start

	if c.ScanOrigin == nil || c.GridOrigin == nil {
		p.skip()
		opsf("cycle skipped: scan origin present=%t grid origin present=%t", c.ScanOrigin != nil, c.GridOrigin != nil)
		return nil, ErrPoseUnavailable
	}

	f := p.builder.Build(frame.Input{
		Raw:        c.Raw,
		Obstacle:   c.Obstacle,
		ScanOrigin: *c.ScanOrigin,
		GridOrigin: *c.GridOrigin,
	})

	var (
		data   []int8
		ox, oy float64
	)
	switch p.cfg.Mode {
	case ModeSingleFrame:
		data = f.Costs()
		ox, oy = f.Origin()
	default:
		if err := p.updater.Update(f); err != nil {
			p.skip()
			return nil, fmt.Errorf("pipeline: fuse observation: %w", err)
		}
		data = p.updater.Costs()
		ox, oy = p.updater.Origin()
	}

	stamp := c.Stamp
	if stamp.IsZero() {
		stamp = start
	}
	originZ := c.GridOrigin.Position.Z
	if c.RobotPose != nil {
		originZ = c.RobotPose.Position.Z
	}
	p.seq++
	snap := &snapshot.Snapshot{
		Sequence:   p.seq,
		Stamp:      stamp,
		FrameID:    p.cfg.FrameID,
		Mode:       string(p.cfg.Mode),
		Resolution: f.Resolution(),
		Width:      f.Width(),
		Height:     f.Height(),
		OriginX:    ox,
		OriginY:    oy,
		OriginZ:    originZ,
		Data:       data,
	}
	processing := p.clock.Since(start)

	p.stateMu.Lock()
	p.latest = snap
	p.stats.Processed++
	p.stats.Sequence = p.seq
	p.stats.LastStamp = stamp
	p.stats.LastProcessing = processing
	p.stats.LastCyclic = cyclic
	sinks := append([]Sink(nil), p.sinks...)
	p.stateMu.Unlock()

	counts := f.Counts()
	tracef("seq=%d raw=%d obstacle=%d free=%d occupied=%d processing=%s cyclic=%s",
		p.seq, len(c.Raw), len(c.Obstacle), counts.Free, counts.Occupied, processing, cyclic)

	for i, s := range sinks {
		if err := s.Publish(snap); err != nil {
			p.stateMu.Lock()
			p.stats.SinkErrors++
			p.stateMu.Unlock()
			opsf("sink %d failed for seq=%d: %v", i, snap.Sequence, err)
		}
	}
	return snap, nil
}

func (p *Processor) skip() {
	p.stateMu.Lock()
	p.stats.Skipped++
	p.stateMu.Unlock()
}

// Latest returns the most recently published snapshot, or nil.
func (p *Processor) Latest() *snapshot.Snapshot {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.latest
}

// Stats returns a copy of the current counters.
func (p *Processor) Stats() Stats {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.stats
}

// Probability returns the fused occupancy probability of the belief cell at
// a world position. ok is false for unknown cells or positions off the grid.
func (p *Processor) Probability(wx, wy float64) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.updater.WorldToCell(wx, wy)
	if !ok {
		return 0, false
	}
	return p.updater.Probability(i)
}

// Checkpoint copies the belief grid.
func (p *Processor) Checkpoint() bbf.Checkpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updater.Checkpoint()
}

// Restore replaces the belief grid with a checkpoint of the same layout.
func (p *Processor) Restore(c bbf.Checkpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.updater.Restore(c); err != nil {
		return err
	}
	diagf("restored belief grid: origin=(%.2f, %.2f) updates=%d", c.OriginX, c.OriginY, c.Updates)
	return nil
}

// Reset forgets all fused history.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updater.Reset()
	diagf("belief grid reset")
}
