package node

import (
	"github.com/banshee-data/occupancy.map/internal/config"
	"github.com/banshee-data/occupancy.map/internal/occupancy/bbf"
	"github.com/banshee-data/occupancy.map/internal/occupancy/costmap"
	"github.com/banshee-data/occupancy.map/internal/occupancy/frame"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.map/internal/occupancy/preprocess"
)

// PipelineConfig maps tuning values onto the core pipeline configuration.
// The grid is square with side map_length / map_resolution cells.
func PipelineConfig(tc *config.TuningConfig) (pipeline.Config, error) {
	cells, err := costmap.DimensionsFromLength(tc.GetMapLength(), tc.GetMapResolution())
	if err != nil {
		return pipeline.Config{}, err
	}
	mode := pipeline.ModeFused
	if tc.GetEnableSingleFrameMode() {
		mode = pipeline.ModeSingleFrame
	}
	cfg := pipeline.Config{
		Mode:    mode,
		FrameID: tc.GetMapFrame(),
		Frame: frame.Config{
			Width:      cells,
			Height:     cells,
			Resolution: tc.GetMapResolution(),
			MaxRange:   tc.GetMaxRange(),
			Workers:    tc.GetRaytraceWorkers(),
		},
		BBF: bbf.Params{
			HitLogOdds:  tc.GetHitLogOdds(),
			MissLogOdds: tc.GetMissLogOdds(),
			PMin:        tc.GetPMin(),
			PMax:        tc.GetPMax(),
		},
	}
	return cfg, cfg.Validate()
}

// PreprocessConfig maps tuning values onto the upstream filter stage.
func PreprocessConfig(tc *config.TuningConfig) preprocess.Config {
	return preprocess.Config{
		UseHeightFilter:     tc.GetUseHeightFilter(),
		MinHeightM:          tc.GetMinHeight(),
		MaxHeightM:          tc.GetMaxHeight(),
		FilterObstacleByRaw: tc.GetFilterObstacleByRaw(),
		CommonVoxelSizeM:    tc.GetCommonVoxelSize(),
	}
}
