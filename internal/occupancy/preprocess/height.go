package preprocess

import (
	"github.com/banshee-data/occupancy.map/internal/occupancy/pointcloud"
)

// HeightBandFilter keeps points whose height above the platform lies within
// [MinHeightM, MaxHeightM].
type HeightBandFilter struct {
	// MinHeightM is the lower bound relative to the platform base. Points
	// below are treated as ground clutter.
	MinHeightM float64
	// MaxHeightM is the upper bound relative to the platform base. Points
	// above are overhangs the platform passes beneath.
	MaxHeightM float64

	pointsProcessed int64
	pointsInBand    int64
	pointsBelow     int64
	pointsAbove     int64
}

// NewHeightBandFilter constructs a filter with explicit bounds.
func NewHeightBandFilter(minM, maxM float64) *HeightBandFilter {
	return &HeightBandFilter{MinHeightM: minM, MaxHeightM: maxM}
}

// DefaultHeightBandFilter keeps -1 m .. 2 m around the platform base.
func DefaultHeightBandFilter() *HeightBandFilter {
	return NewHeightBandFilter(-1.0, 2.0)
}

// Filter compacts pts in place, keeping points whose Z relative to baseZ is
// within the band, and returns the truncated slice. Callers that need the
// input afterwards must pass a copy.
func (f *HeightBandFilter) Filter(pts pointcloud.Cloud, baseZ float64) pointcloud.Cloud {
	if len(pts) == 0 {
		return nil
	}
	w := 0
	for _, pt := range pts {
		f.pointsProcessed++
		h := pt.Z - baseZ
		if h < f.MinHeightM {
			f.pointsBelow++
			continue
		}
		if h > f.MaxHeightM {
			f.pointsAbove++
			continue
		}
		f.pointsInBand++
		pts[w] = pt
		w++
	}
	return pts[:w]
}

// Stats returns accumulated counters.
func (f *HeightBandFilter) Stats() (processed, kept, below, above int64) {
	return f.pointsProcessed, f.pointsInBand, f.pointsBelow, f.pointsAbove
}

// ResetStats clears accumulated counters.
func (f *HeightBandFilter) ResetStats() {
	f.pointsProcessed = 0
	f.pointsInBand = 0
	f.pointsBelow = 0
	f.pointsAbove = 0
}
