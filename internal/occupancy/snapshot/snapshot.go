package snapshot

import (
	"time"

	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
)

// Snapshot is one published occupancy grid. Data holds external cost values
// (0..100, or costvalue.UnknownCost) row-major from cell [0,0].
type Snapshot struct {
	Sequence   uint64
	Stamp      time.Time
	FrameID    string
	Mode       string
	Resolution float64
	Width      int
	Height     int
	OriginX    float64
	OriginY    float64
	OriginZ    float64
	Data       []int8
}

// At returns the cost of cell (x, y). ok is false out of bounds.
func (s *Snapshot) At(x, y int) (int8, bool) {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return 0, false
	}
	return s.Data[y*s.Width+x], true
}

// WorldToCell converts a world position to the cell that contains it.
func (s *Snapshot) WorldToCell(wx, wy float64) (x, y int, ok bool) {
	if s.Resolution <= 0 {
		return 0, 0, false
	}
	fx := (wx - s.OriginX) / s.Resolution
	fy := (wy - s.OriginY) / s.Resolution
	if fx < 0 || fy < 0 {
		return 0, 0, false
	}
	x, y = int(fx), int(fy)
	if x >= s.Width || y >= s.Height {
		return 0, 0, false
	}
	return x, y, true
}

// Counts summarises a snapshot. Free and Occupied count cells leaning either
// side of even odds; Lethal is the subset of Occupied at or above the
// occupied threshold.
type Counts struct {
	Unknown  int `json:"unknown"`
	Free     int `json:"free"`
	Occupied int `json:"occupied"`
	Neutral  int `json:"neutral"`
	Lethal   int `json:"lethal"`
}

func (s *Snapshot) Counts() Counts {
	var c Counts
	for _, v := range s.Data {
		switch {
		case v == costvalue.UnknownCost:
			c.Unknown++
		case v < costvalue.NoInformationCost:
			c.Free++
		case v > costvalue.NoInformationCost:
			c.Occupied++
			if v >= costvalue.OccupiedCostThreshold {
				c.Lethal++
			}
		default:
			c.Neutral++
		}
	}
	return c
}

// SizeInMeters returns the extent of the grid.
func (s *Snapshot) SizeInMeters() (float64, float64) {
	return float64(s.Width) * s.Resolution, float64(s.Height) * s.Resolution
}
