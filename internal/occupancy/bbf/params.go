package bbf

import (
	"fmt"
	"math"
)

// Params configures the filter.
type Params struct {
	HitLogOdds  float64 // added for an occupied observation, > 0
	MissLogOdds float64 // added for a free observation, < 0
	PMin        float64 // lower probability clamp
	PMax        float64 // upper probability clamp
}

// DefaultParams returns a hit probability of ~0.7, a miss probability of
// ~0.4 and clamps at 0.12 / 0.97.
func DefaultParams() Params {
	return Params{
		HitLogOdds:  0.85,
		MissLogOdds: -0.4,
		PMin:        0.12,
		PMax:        0.97,
	}
}

// Validate checks the parameters. Invalid parameters are never clamped into
// range; the caller must fix the configuration.
func (p Params) Validate() error {
	if !(p.HitLogOdds > 0) || math.IsInf(p.HitLogOdds, 0) {
		return fmt.Errorf("bbf: hit log-odds must be positive and finite, got %v", p.HitLogOdds)
	}
	if !(p.MissLogOdds < 0) || math.IsInf(p.MissLogOdds, 0) {
		return fmt.Errorf("bbf: miss log-odds must be negative and finite, got %v", p.MissLogOdds)
	}
	if !(p.PMin > 0 && p.PMin < 1) {
		return fmt.Errorf("bbf: p_min must be in (0, 1), got %v", p.PMin)
	}
	if !(p.PMax > 0 && p.PMax < 1) {
		return fmt.Errorf("bbf: p_max must be in (0, 1), got %v", p.PMax)
	}
	if !(p.PMin < p.PMax) {
		return fmt.Errorf("bbf: p_min (%v) must be less than p_max (%v)", p.PMin, p.PMax)
	}
	return nil
}

// LogOddsBounds returns the clamp range in log-odds.
func (p Params) LogOddsBounds() (lo, hi float64) {
	return LogOdds(p.PMin), LogOdds(p.PMax)
}

// LogOdds returns log(p / (1-p)).
func LogOdds(p float64) float64 {
	return math.Log(p / (1 - p))
}

// Probability is the inverse of LogOdds.
func Probability(l float64) float64 {
	return 1 / (1 + math.Exp(-l))
}
