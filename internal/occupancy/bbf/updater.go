package bbf

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/occupancy.map/internal/occupancy/costmap"
	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
	"github.com/banshee-data/occupancy.map/internal/occupancy/frame"
)

// ErrGridMismatch is returned when an observation or checkpoint does not
// share the belief grid's dimensions and resolution.
var ErrGridMismatch = errors.New("bbf: grid layout mismatch")

// Belief is the fused state of one cell. The zero value is unknown: the cell
// has never been observed.
type Belief struct {
	LogOdds  float64
	Observed bool
}

// Fuse applies one observation to a prior belief. It is the pure merge
// function behind Updater.Update; an unknown observation returns prior
// unchanged, and a first observation starts from even odds.
func Fuse(prior Belief, o costvalue.Observation, p Params) Belief {
	lo, hi := p.LogOddsBounds()
	return fuse(prior, o, p.HitLogOdds, p.MissLogOdds, lo, hi)
}

func fuse(prior Belief, o costvalue.Observation, hit, miss, lo, hi float64) Belief {
	var delta float64
	switch o {
	case costvalue.Occupied:
		delta = hit
	case costvalue.Free:
		delta = miss
	default:
		return prior
	}
	base := 0.0
	if prior.Observed {
		base = prior.LogOdds
	}
	return Belief{LogOdds: clamp(base+delta, lo, hi), Observed: true}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Updater owns the persistent belief grid.
type Updater struct {
	params  Params
	lMin    float64
	lMax    float64
	grid    *costmap.Grid[Belief]
	updates uint64
}

// NewUpdater allocates an all-unknown belief grid.
func NewUpdater(width, height int, resolution float64, params Params) (*Updater, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	g, err := costmap.New(width, height, resolution, Belief{})
	if err != nil {
		return nil, err
	}
	lo, hi := params.LogOddsBounds()
	return &Updater{params: params, lMin: lo, lMax: hi, grid: g}, nil
}

func (u *Updater) Params() Params      { return u.params }
func (u *Updater) Width() int          { return u.grid.Width() }
func (u *Updater) Height() int         { return u.grid.Height() }
func (u *Updater) Resolution() float64 { return u.grid.Resolution() }

// Origin returns the world position of the corner of cell [0,0].
func (u *Updater) Origin() (x, y float64) { return u.grid.Origin() }

// Updates returns how many frames have been fused.
func (u *Updater) Updates() uint64 { return u.updates }

// Update fuses an observation frame into the belief grid. When the frame's
// origin differs, the belief grid is re-centred first so that overlapping
// history is kept. A frame with a different layout is rejected and the
// belief grid is left untouched.
func (u *Updater) Update(f *frame.Frame) error {
	if f == nil {
		return fmt.Errorf("bbf: nil observation frame")
	}
	if f.Width() != u.grid.Width() || f.Height() != u.grid.Height() || f.Resolution() != u.grid.Resolution() {
		return fmt.Errorf("%w: observation %dx%d@%v, belief %dx%d@%v", ErrGridMismatch,
			f.Width(), f.Height(), f.Resolution(), u.grid.Width(), u.grid.Height(), u.grid.Resolution())
	}

	fx, fy := f.Origin()
	if dx, dy := u.grid.CellShift(fx, fy); dx != 0 || dy != 0 {
		u.grid.UpdateOrigin(fx, fy)
	}

	for i := 0; i < u.grid.Len(); i++ {
		o := f.AtOffset(i)
		if o == costvalue.Unknown {
			continue
		}
		u.grid.SetAt(i, fuse(u.grid.At(i), o, u.params.HitLogOdds, u.params.MissLogOdds, u.lMin, u.lMax))
	}
	u.updates++
	return nil
}

// Belief returns the fused state of cell i.
func (u *Updater) Belief(i costmap.Index) (Belief, bool) {
	return u.grid.Get(i)
}

// Probability returns the occupancy probability of cell i, clamped to
// [PMin, PMax]. ok is false for unknown or out-of-bounds cells.
func (u *Updater) Probability(i costmap.Index) (p float64, ok bool) {
	b, in := u.grid.Get(i)
	if !in || !b.Observed {
		return 0, false
	}
	return u.probability(b), true
}

func (u *Updater) probability(b Belief) float64 {
	return clamp(Probability(b.LogOdds), u.params.PMin, u.params.PMax)
}

// WorldToCell converts a world position to a belief cell.
func (u *Updater) WorldToCell(wx, wy float64) (costmap.Index, bool) {
	return u.grid.WorldToCell(wx, wy)
}

// Costs returns the published value of every cell, row-major.
func (u *Updater) Costs() []int8 {
	out := make([]int8, u.grid.Len())
	for i := range out {
		b := u.grid.At(i)
		if !b.Observed {
			out[i] = costvalue.UnknownCost
			continue
		}
		out[i] = costvalue.FromProbability(u.probability(b))
	}
	return out
}

// Reset forgets all fused history without moving the grid.
func (u *Updater) Reset() {
	u.grid.Reset()
	u.updates = 0
}

// Checkpoint is a serialisable copy of the belief grid.
type Checkpoint struct {
	Width      int
	Height     int
	Resolution float64
	OriginX    float64
	OriginY    float64
	Updates    uint64
	Cells      []Belief
}

// Checkpoint copies the current belief grid.
func (u *Updater) Checkpoint() Checkpoint {
	ox, oy := u.grid.Origin()
	return Checkpoint{
		Width:      u.grid.Width(),
		Height:     u.grid.Height(),
		Resolution: u.grid.Resolution(),
		OriginX:    ox,
		OriginY:    oy,
		Updates:    u.updates,
		Cells:      u.grid.Cells(),
	}
}

// Restore replaces the belief grid with a checkpoint of the same layout.
// Restored log-odds are clamped to the current bounds, which may be tighter
// than the ones the checkpoint was written with.
func (u *Updater) Restore(c Checkpoint) error {
	if c.Width != u.grid.Width() || c.Height != u.grid.Height() || c.Resolution != u.grid.Resolution() {
		return fmt.Errorf("%w: checkpoint %dx%d@%v, belief %dx%d@%v", ErrGridMismatch,
			c.Width, c.Height, c.Resolution, u.grid.Width(), u.grid.Height(), u.grid.Resolution())
	}
	if len(c.Cells) != c.Width*c.Height {
		return fmt.Errorf("%w: checkpoint has %d cells, want %d", ErrGridMismatch, len(c.Cells), c.Width*c.Height)
	}

	g, err := costmap.New(c.Width, c.Height, c.Resolution, Belief{})
	if err != nil {
		return err
	}
	g.UpdateOrigin(c.OriginX, c.OriginY)
	for i, b := range c.Cells {
		if !b.Observed || math.IsNaN(b.LogOdds) {
			continue
		}
		g.SetAt(i, Belief{LogOdds: clamp(b.LogOdds, u.lMin, u.lMax), Observed: true})
	}
	u.grid = g
	u.updates = c.Updates
	return nil
}
