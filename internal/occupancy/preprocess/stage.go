package preprocess

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/banshee-data/occupancy.map/internal/occupancy/pointcloud"
)

// Config toggles the upstream filters.
type Config struct {
	UseHeightFilter     bool
	MinHeightM          float64
	MaxHeightM          float64
	FilterObstacleByRaw bool
	CommonVoxelSizeM    float64
}

// DefaultConfig enables both filters with a -1 m .. 2 m window and 0.1 m
// voxels.
func DefaultConfig() Config {
	return Config{
		UseHeightFilter:     true,
		MinHeightM:          -1.0,
		MaxHeightM:          2.0,
		FilterObstacleByRaw: true,
		CommonVoxelSizeM:    0.1,
	}
}

// Validate checks the enabled filters' parameters.
func (c Config) Validate() error {
	if c.UseHeightFilter && !(c.MinHeightM < c.MaxHeightM) {
		return fmt.Errorf("preprocess: min height (%v) must be below max height (%v)", c.MinHeightM, c.MaxHeightM)
	}
	if c.FilterObstacleByRaw && (!(c.CommonVoxelSizeM > 0) || math.IsInf(c.CommonVoxelSizeM, 0)) {
		return fmt.Errorf("preprocess: common voxel size must be positive, got %v", c.CommonVoxelSizeM)
	}
	return nil
}

// Stats counts what the stage did across calls.
type Stats struct {
	Cycles          int64 `json:"cycles"`
	HeightKept      int64 `json:"height_kept"`
	HeightDropped   int64 `json:"height_dropped"`
	CommonFallbacks int64 `json:"common_fallbacks"`
}

// Stage applies the configured filters. Apply has a single caller; Stats may
// be read from any goroutine.
type Stage struct {
	cfg    Config
	height *HeightBandFilter

	cycles          atomic.Int64
	heightKept      atomic.Int64
	heightDropped   atomic.Int64
	commonFallbacks atomic.Int64
}

// NewStage validates cfg and returns a stage.
func NewStage(cfg Config) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stage{cfg: cfg, height: NewHeightBandFilter(cfg.MinHeightM, cfg.MaxHeightM)}, nil
}

// Apply returns filtered copies of the clouds. base is the platform pose the
// height window is measured from.
func (s *Stage) Apply(obstacle, raw pointcloud.Cloud, base pointcloud.Pose) (pointcloud.Cloud, pointcloud.Cloud) {
	s.cycles.Add(1)
	if s.cfg.UseHeightFilter {
		s.height.ResetStats()
		obstacle = s.height.Filter(obstacle.Clone(), base.Position.Z)
		raw = s.height.Filter(raw.Clone(), base.Position.Z)
		processed, kept, _, _ := s.height.Stats()
		s.heightKept.Add(kept)
		s.heightDropped.Add(processed - kept)
	}
	if s.cfg.FilterObstacleByRaw {
		var ok bool
		obstacle, ok = ExtractCommon(obstacle, raw, s.cfg.CommonVoxelSizeM)
		if !ok {
			s.commonFallbacks.Add(1)
		}
	}
	return obstacle, raw
}

// Stats returns accumulated counters.
func (s *Stage) Stats() Stats {
	return Stats{
		Cycles:          s.cycles.Load(),
		HeightKept:      s.heightKept.Load(),
		HeightDropped:   s.heightDropped.Load(),
		CommonFallbacks: s.commonFallbacks.Load(),
	}
}
