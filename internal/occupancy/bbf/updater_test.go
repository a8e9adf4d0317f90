package bbf

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.map/internal/occupancy/costmap"
	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
	"github.com/banshee-data/occupancy.map/internal/occupancy/frame"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pointcloud"
)

const (
	gridSize = 10
	gridRes  = 1.0
)

var target = costmap.Index{X: 3, Y: 4}

func newBuilder(t *testing.T) *frame.Builder {
	t.Helper()
	b, err := frame.NewBuilder(frame.Config{Width: gridSize, Height: gridSize, Resolution: gridRes, MaxRange: 100})
	require.NoError(t, err)
	return b
}

func newUpdater(t *testing.T) *Updater {
	t.Helper()
	u, err := NewUpdater(gridSize, gridSize, gridRes, DefaultParams())
	require.NoError(t, err)
	return u
}

// singleCellFrame returns a frame centred at (cx, cy) whose only known cell
// is the one containing (wx, wy), holding o.
func singleCellFrame(t *testing.T, b *frame.Builder, cx, cy, wx, wy float64, o costvalue.Observation) *frame.Frame {
	t.Helper()
	in := frame.Input{
		ScanOrigin: pointcloud.NewPose(wx, wy, 0, 0),
		GridOrigin: pointcloud.NewPose(cx, cy, 0, 0),
	}
	pt := pointcloud.Cloud{{X: wx, Y: wy}}
	switch o {
	case costvalue.Occupied:
		in.Obstacle = pt
	case costvalue.Free:
		in.Raw = pt
	}
	return b.Build(in)
}

func targetFrame(t *testing.T, b *frame.Builder, o costvalue.Observation) *frame.Frame {
	return singleCellFrame(t, b, 5, 5, float64(target.X)+0.5, float64(target.Y)+0.5, o)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name string
		mod  func(p *Params)
	}{
		{"zero hit", func(p *Params) { p.HitLogOdds = 0 }},
		{"negative hit", func(p *Params) { p.HitLogOdds = -1 }},
		{"positive miss", func(p *Params) { p.MissLogOdds = 0.1 }},
		{"zero miss", func(p *Params) { p.MissLogOdds = 0 }},
		{"inverted bounds", func(p *Params) { p.PMin, p.PMax = 0.9, 0.2 }},
		{"equal bounds", func(p *Params) { p.PMin, p.PMax = 0.5, 0.5 }},
		{"p_max of one", func(p *Params) { p.PMax = 1 }},
		{"p_min of zero", func(p *Params) { p.PMin = 0 }},
		{"nan hit", func(p *Params) { p.HitLogOdds = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mod(&p)
			assert.Error(t, p.Validate())
			_, err := NewUpdater(gridSize, gridSize, gridRes, p)
			assert.Error(t, err)
		})
	}
}

func TestFuse_Pure(t *testing.T) {
	p := DefaultParams()
	prior := Belief{LogOdds: 1.234, Observed: true}
	assert.Equal(t, prior, Fuse(prior, costvalue.Unknown, p))
	assert.Equal(t, Belief{}, Fuse(Belief{}, costvalue.Unknown, p))

	first := Fuse(Belief{}, costvalue.Occupied, p)
	assert.True(t, first.Observed)
	assert.InDelta(t, p.HitLogOdds, first.LogOdds, 1e-12)

	firstFree := Fuse(Belief{}, costvalue.Free, p)
	assert.InDelta(t, p.MissLogOdds, firstFree.LogOdds, 1e-12)
}

func TestUpdate_MonotoneTowardPMax(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	p := u.Params()
	_, lMax := p.LogOddsBounds()
	f := targetFrame(t, b, costvalue.Occupied)

	prev := 0.5
	for n := 0; n < 50; n++ {
		require.NoError(t, u.Update(f))
		prob, ok := u.Probability(target)
		require.True(t, ok)
		assert.GreaterOrEqual(t, prob, prev, "update %d decreased probability", n)
		assert.LessOrEqual(t, prob, p.PMax, "update %d exceeded p_max", n)
		bel, _ := u.Belief(target)
		assert.LessOrEqual(t, bel.LogOdds, lMax)
		prev = prob
	}
	assert.InDelta(t, p.PMax, prev, 1e-12)
}

func TestUpdate_MonotoneTowardPMin(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	p := u.Params()
	lMin, _ := p.LogOddsBounds()
	f := targetFrame(t, b, costvalue.Free)

	prev := 0.5
	for n := 0; n < 50; n++ {
		require.NoError(t, u.Update(f))
		prob, ok := u.Probability(target)
		require.True(t, ok)
		assert.LessOrEqual(t, prob, prev, "update %d increased probability", n)
		assert.GreaterOrEqual(t, prob, p.PMin, "update %d went below p_min", n)
		bel, _ := u.Belief(target)
		assert.GreaterOrEqual(t, bel.LogOdds, lMin)
		prev = prob
	}
	assert.InDelta(t, p.PMin, prev, 1e-12)
}

func TestUpdate_UnknownKeepsPriorExactly(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Occupied)))
	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Free)))
	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Occupied)))

	before, _ := u.Belief(target)
	beforeP, _ := u.Probability(target)

	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Unknown)))

	after, _ := u.Belief(target)
	afterP, _ := u.Probability(target)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeP, afterP)
}

func TestUpdate_NeverObservedStaysUnknown(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Occupied)))

	_, ok := u.Probability(costmap.Index{X: 0, Y: 0})
	assert.False(t, ok)
	costs := u.Costs()
	assert.Equal(t, costvalue.UnknownCost, costs[0])
}

func TestUpdate_SaturatedCellFlipsWithinBound(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	p := u.Params()
	_, lMax := p.LogOddsBounds()

	occ := targetFrame(t, b, costvalue.Occupied)
	for n := 0; n < 200; n++ {
		require.NoError(t, u.Update(occ))
	}

	free := targetFrame(t, b, costvalue.Free)
	limit := int(math.Ceil(lMax/-p.MissLogOdds)) + 1
	flips := 0
	for ; flips < limit; flips++ {
		prob, _ := u.Probability(target)
		if prob < 0.5 {
			break
		}
		require.NoError(t, u.Update(free))
	}
	prob, _ := u.Probability(target)
	assert.Less(t, prob, 0.5, "cell did not flip within %d free observations", limit)
}

func TestUpdate_OneCycleCosts(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Occupied)))
	costs := u.Costs()
	assert.Greater(t, costs[target.Y*gridSize+target.X], int8(50))

	u2 := newUpdater(t)
	require.NoError(t, u2.Update(targetFrame(t, b, costvalue.Free)))
	costs = u2.Costs()
	assert.Less(t, costs[target.Y*gridSize+target.X], int8(50))
	assert.GreaterOrEqual(t, costs[target.Y*gridSize+target.X], int8(0))
}

func TestUpdate_RecentresAndKeepsHistory(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)

	// Mark the world cell containing (3.5, 4.5) occupied with the frame
	// centred at (5, 5), then move the frame one cell right and up.
	require.NoError(t, u.Update(singleCellFrame(t, b, 5, 5, 3.5, 4.5, costvalue.Occupied)))
	before, ok := u.Probability(costmap.Index{X: 3, Y: 4})
	require.True(t, ok)

	require.NoError(t, u.Update(singleCellFrame(t, b, 6, 6, 8.5, 8.5, costvalue.Unknown)))
	ox, oy := u.Origin()
	assert.InDelta(t, 1.0, ox, 1e-9)
	assert.InDelta(t, 1.0, oy, 1e-9)

	i, ok := u.WorldToCell(3.5, 4.5)
	require.True(t, ok)
	assert.Equal(t, costmap.Index{X: 2, Y: 3}, i)
	after, ok := u.Probability(i)
	require.True(t, ok)
	assert.Equal(t, before, after)

	// The strip that entered on the far side is unknown.
	for y := 0; y < gridSize; y++ {
		_, known := u.Probability(costmap.Index{X: gridSize - 1, Y: y})
		assert.False(t, known)
	}
}

func TestUpdate_LayoutMismatchLeavesBeliefUntouched(t *testing.T) {
	u := newUpdater(t)
	b := newBuilder(t)
	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Occupied)))
	before := u.Checkpoint()

	other, err := frame.NewBuilder(frame.Config{Width: gridSize, Height: gridSize, Resolution: 0.5, MaxRange: 10})
	require.NoError(t, err)
	err = u.Update(other.Build(frame.Input{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGridMismatch))
	assert.Equal(t, before, u.Checkpoint())

	assert.Error(t, u.Update(nil))
}

func TestCheckpointRestore(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	require.NoError(t, u.Update(singleCellFrame(t, b, 12, -3, 11.5, -2.5, costvalue.Occupied)))
	cp := u.Checkpoint()

	restored := newUpdater(t)
	require.NoError(t, restored.Restore(cp))
	assert.Equal(t, cp, restored.Checkpoint())
	assert.Equal(t, u.Costs(), restored.Costs())

	bad := cp
	bad.Width = 3
	assert.ErrorIs(t, restored.Restore(bad), ErrGridMismatch)

	short := cp
	short.Cells = short.Cells[:5]
	assert.ErrorIs(t, restored.Restore(short), ErrGridMismatch)
}

func TestRestore_ClampsToCurrentBounds(t *testing.T) {
	u := newUpdater(t)
	cp := u.Checkpoint()
	cp.Cells[0] = Belief{LogOdds: 50, Observed: true}
	require.NoError(t, u.Restore(cp))
	p, ok := u.Probability(costmap.Index{})
	require.True(t, ok)
	assert.InDelta(t, u.Params().PMax, p, 1e-12)
	bel, _ := u.Belief(costmap.Index{})
	_, lMax := u.Params().LogOddsBounds()
	assert.Equal(t, lMax, bel.LogOdds)
}

func TestReset(t *testing.T) {
	b := newBuilder(t)
	u := newUpdater(t)
	require.NoError(t, u.Update(targetFrame(t, b, costvalue.Occupied)))
	u.Reset()
	_, ok := u.Probability(target)
	assert.False(t, ok)
	assert.Zero(t, u.Updates())
}
