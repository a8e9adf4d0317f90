package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/occupancy.defaults.json"

// TuningConfig is the on-disk configuration of the occupancy grid node.
// Every field is optional; the Get* accessors supply defaults for fields
// the file omits.
type TuningConfig struct {
	// Grid
	MapFrame              *string  `json:"map_frame,omitempty"`
	MapLength             *float64 `json:"map_length,omitempty"`     // metres
	MapResolution         *float64 `json:"map_resolution,omitempty"` // metres per cell
	MaxRange              *float64 `json:"max_range,omitempty"`      // metres
	EnableSingleFrameMode *bool    `json:"enable_single_frame_mode,omitempty"`
	RaytraceWorkers       *int     `json:"raytrace_workers,omitempty"`

	// Binary Bayes filter
	HitLogOdds  *float64 `json:"bbf_hit_log_odds,omitempty"`
	MissLogOdds *float64 `json:"bbf_miss_log_odds,omitempty"`
	PMin        *float64 `json:"bbf_p_min,omitempty"`
	PMax        *float64 `json:"bbf_p_max,omitempty"`

	// Upstream filters
	UseHeightFilter     *bool    `json:"use_height_filter,omitempty"`
	MinHeight           *float64 `json:"min_height,omitempty"`
	MaxHeight           *float64 `json:"max_height,omitempty"`
	FilterObstacleByRaw *bool    `json:"filter_obstacle_pointcloud_by_raw_pointcloud,omitempty"`
	CommonVoxelSize     *float64 `json:"common_voxel_size,omitempty"`

	// Persistence
	SnapshotEvery      *int    `json:"snapshot_every,omitempty"` // store one snapshot in N
	SnapshotKeep       *int    `json:"snapshot_keep,omitempty"`  // 0 keeps everything
	CheckpointInterval *string `json:"checkpoint_interval,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for tests.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/occupancy/<pkg>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the effective configuration, defaults included. Values
// are never clamped into range.
func (c *TuningConfig) Validate() error {
	length, res := c.GetMapLength(), c.GetMapResolution()
	if !positiveFinite(length) {
		return fmt.Errorf("map_length must be positive, got %v", length)
	}
	if !positiveFinite(res) {
		return fmt.Errorf("map_resolution must be positive, got %v", res)
	}
	if cells := math.Round(length / res); cells < 1 {
		return fmt.Errorf("map_length %v at map_resolution %v gives no cells", length, res)
	}
	if r := c.GetMaxRange(); !positiveFinite(r) {
		return fmt.Errorf("max_range must be positive, got %v", r)
	}
	if w := c.GetRaytraceWorkers(); w < 0 {
		return fmt.Errorf("raytrace_workers must be non-negative, got %d", w)
	}

	hit, miss := c.GetHitLogOdds(), c.GetMissLogOdds()
	if !(miss < 0 && 0 < hit) || math.IsInf(hit, 0) || math.IsInf(miss, 0) {
		return fmt.Errorf("bbf log-odds must satisfy miss < 0 < hit, got miss=%v hit=%v", miss, hit)
	}
	pMin, pMax := c.GetPMin(), c.GetPMax()
	if !(0 < pMin && pMin < pMax && pMax < 1) {
		return fmt.Errorf("bbf bounds must satisfy 0 < p_min < p_max < 1, got p_min=%v p_max=%v", pMin, pMax)
	}

	if c.GetUseHeightFilter() && !(c.GetMinHeight() < c.GetMaxHeight()) {
		return fmt.Errorf("min_height (%v) must be below max_height (%v)", c.GetMinHeight(), c.GetMaxHeight())
	}
	if c.GetFilterObstacleByRaw() && !positiveFinite(c.GetCommonVoxelSize()) {
		return fmt.Errorf("common_voxel_size must be positive, got %v", c.GetCommonVoxelSize())
	}

	if n := c.GetSnapshotEvery(); n < 1 {
		return fmt.Errorf("snapshot_every must be at least 1, got %d", n)
	}
	if n := c.GetSnapshotKeep(); n < 0 {
		return fmt.Errorf("snapshot_keep must be non-negative, got %d", n)
	}
	if c.CheckpointInterval != nil && *c.CheckpointInterval != "" {
		d, err := time.ParseDuration(*c.CheckpointInterval)
		if err != nil {
			return fmt.Errorf("invalid checkpoint_interval '%s': %w", *c.CheckpointInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("checkpoint_interval must be non-negative, got %s", d)
		}
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// GetMapFrame returns the map_frame value or the default.
func (c *TuningConfig) GetMapFrame() string {
	if c.MapFrame == nil || *c.MapFrame == "" {
		return "map"
	}
	return *c.MapFrame
}

// GetMapLength returns the map_length value or the default.
func (c *TuningConfig) GetMapLength() float64 {
	if c.MapLength == nil {
		return 100.0
	}
	return *c.MapLength
}

// GetMapResolution returns the map_resolution value or the default.
func (c *TuningConfig) GetMapResolution() float64 {
	if c.MapResolution == nil {
		return 0.5
	}
	return *c.MapResolution
}

// GetMaxRange returns the max_range value or the default.
func (c *TuningConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return 50.0
	}
	return *c.MaxRange
}

// GetEnableSingleFrameMode returns the enable_single_frame_mode value or the default.
func (c *TuningConfig) GetEnableSingleFrameMode() bool {
	if c.EnableSingleFrameMode == nil {
		return false
	}
	return *c.EnableSingleFrameMode
}

// GetRaytraceWorkers returns the raytrace_workers value or the default.
// Zero or one casts serially.
func (c *TuningConfig) GetRaytraceWorkers() int {
	if c.RaytraceWorkers == nil {
		return 0
	}
	return *c.RaytraceWorkers
}

// GetHitLogOdds returns the bbf_hit_log_odds value or the default.
func (c *TuningConfig) GetHitLogOdds() float64 {
	if c.HitLogOdds == nil {
		return 0.85
	}
	return *c.HitLogOdds
}

// GetMissLogOdds returns the bbf_miss_log_odds value or the default.
func (c *TuningConfig) GetMissLogOdds() float64 {
	if c.MissLogOdds == nil {
		return -0.4
	}
	return *c.MissLogOdds
}

// GetPMin returns the bbf_p_min value or the default.
func (c *TuningConfig) GetPMin() float64 {
	if c.PMin == nil {
		return 0.12
	}
	return *c.PMin
}

// GetPMax returns the bbf_p_max value or the default.
func (c *TuningConfig) GetPMax() float64 {
	if c.PMax == nil {
		return 0.97
	}
	return *c.PMax
}

// GetUseHeightFilter returns the use_height_filter value or the default.
func (c *TuningConfig) GetUseHeightFilter() bool {
	if c.UseHeightFilter == nil {
		return true
	}
	return *c.UseHeightFilter
}

// GetMinHeight returns the min_height value or the default.
func (c *TuningConfig) GetMinHeight() float64 {
	if c.MinHeight == nil {
		return -1.0
	}
	return *c.MinHeight
}

// GetMaxHeight returns the max_height value or the default.
func (c *TuningConfig) GetMaxHeight() float64 {
	if c.MaxHeight == nil {
		return 2.0
	}
	return *c.MaxHeight
}

// GetFilterObstacleByRaw returns the
// filter_obstacle_pointcloud_by_raw_pointcloud value or the default.
func (c *TuningConfig) GetFilterObstacleByRaw() bool {
	if c.FilterObstacleByRaw == nil {
		return false
	}
	return *c.FilterObstacleByRaw
}

// GetCommonVoxelSize returns the common_voxel_size value or the default.
func (c *TuningConfig) GetCommonVoxelSize() float64 {
	if c.CommonVoxelSize == nil {
		return 0.1
	}
	return *c.CommonVoxelSize
}

// GetSnapshotEvery returns the snapshot_every value or the default.
func (c *TuningConfig) GetSnapshotEvery() int {
	if c.SnapshotEvery == nil {
		return 10
	}
	return *c.SnapshotEvery
}

// GetSnapshotKeep returns the snapshot_keep value or the default.
func (c *TuningConfig) GetSnapshotKeep() int {
	if c.SnapshotKeep == nil {
		return 1000
	}
	return *c.SnapshotKeep
}

// GetCheckpointInterval parses and returns the checkpoint_interval. Zero
// disables periodic checkpoints.
func (c *TuningConfig) GetCheckpointInterval() time.Duration {
	if c.CheckpointInterval == nil || *c.CheckpointInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.CheckpointInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
