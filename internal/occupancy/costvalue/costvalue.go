package costvalue

import "math"

// Internal cost scale. Probabilities map linearly onto [FreeSpace, LethalObstacle].
const (
	FreeSpace      uint8 = 0
	NoInformation  uint8 = 128 // 0.5 * 255
	LethalObstacle uint8 = 255

	// Cells at or above OccupiedThreshold are reported as occupied, cells at
	// or below FreeThreshold as free.
	OccupiedThreshold uint8 = 180
	FreeThreshold     uint8 = 50
)

// UnknownCost is the published value for a cell with no information.
const UnknownCost int8 = -1

// Published thresholds on the 0-100 scale, derived from the internal ones
// through the translation table.
var (
	OccupiedCostThreshold = Translate(OccupiedThreshold)
	FreeCostThreshold     = Translate(FreeThreshold)
	NoInformationCost     = Translate(NoInformation)
)

// Observation is the per-cycle evidence for one cell.
// The ordering Unknown < Free < Occupied is what Merge relies on.
type Observation uint8

const (
	Unknown Observation = iota
	Free
	Occupied
)

// String returns a short name for the observation.
func (o Observation) String() string {
	switch o {
	case Unknown:
		return "unknown"
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return "invalid"
	}
}

// Merge combines two observations of the same cell within one frame.
// Occupied dominates free and anything dominates unknown. Merge is
// commutative, associative and idempotent, so rays may be cast in any
// order or in parallel partial frames that are reduced afterwards.
func Merge(a, b Observation) Observation {
	if a > b {
		return a
	}
	return b
}

// Translate maps an internal cost to the published 0-100 scale.
func Translate(cost uint8) int8 {
	return translationTable[cost]
}

// ProbabilityToCost maps an occupancy probability onto the internal scale,
// rounding to the nearest step. Inputs outside [0, 1] saturate.
func ProbabilityToCost(p float64) uint8 {
	switch {
	case math.IsNaN(p) || p <= 0:
		return FreeSpace
	case p >= 1:
		return LethalObstacle
	}
	return uint8(p*255 + 0.5)
}

// FromProbability publishes a probability. Negative values mean unknown.
func FromProbability(p float64) int8 {
	if p < 0 || math.IsNaN(p) {
		return UnknownCost
	}
	return Translate(ProbabilityToCost(p))
}

// FromObservation publishes a single-frame observation.
func FromObservation(o Observation) int8 {
	switch o {
	case Free:
		return Translate(FreeSpace)
	case Occupied:
		return Translate(LethalObstacle)
	default:
		return UnknownCost
	}
}
