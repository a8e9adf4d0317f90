package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	if got := cfg.GetMapFrame(); got != "map" {
		t.Errorf("GetMapFrame() = %q, want map", got)
	}
	if got := cfg.GetMapLength(); got != 100.0 {
		t.Errorf("GetMapLength() = %v, want 100", got)
	}
	if got := cfg.GetMapResolution(); got != 0.5 {
		t.Errorf("GetMapResolution() = %v, want 0.5", got)
	}
	if got := cfg.GetHitLogOdds(); got != 0.85 {
		t.Errorf("GetHitLogOdds() = %v, want 0.85", got)
	}
	if got := cfg.GetMissLogOdds(); got != -0.4 {
		t.Errorf("GetMissLogOdds() = %v, want -0.4", got)
	}
	if got := cfg.GetPMin(); got != 0.12 {
		t.Errorf("GetPMin() = %v, want 0.12", got)
	}
	if got := cfg.GetPMax(); got != 0.97 {
		t.Errorf("GetPMax() = %v, want 0.97", got)
	}
	if cfg.GetEnableSingleFrameMode() {
		t.Error("GetEnableSingleFrameMode() = true, want false")
	}
	if !cfg.GetUseHeightFilter() {
		t.Error("GetUseHeightFilter() = false, want true")
	}
	if got := cfg.GetCheckpointInterval(); got != 30*time.Second {
		t.Errorf("GetCheckpointInterval() = %v, want 30s", got)
	}
	if got := cfg.GetSnapshotEvery(); got != 10 {
		t.Errorf("GetSnapshotEvery() = %d, want 10", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "occupancy.json", `{
  "map_frame": "odom",
  "map_length": 40,
  "map_resolution": 0.25,
  "enable_single_frame_mode": true,
  "bbf_hit_log_odds": 1.2,
  "checkpoint_interval": "5m"
}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.MapFrame == nil || *cfg.MapFrame != "odom" {
		t.Errorf("Expected MapFrame odom, got %v", cfg.MapFrame)
	}
	if got := cfg.GetMapLength(); got != 40 {
		t.Errorf("GetMapLength() = %v, want 40", got)
	}
	if got := cfg.GetMapResolution(); got != 0.25 {
		t.Errorf("GetMapResolution() = %v, want 0.25", got)
	}
	if !cfg.GetEnableSingleFrameMode() {
		t.Error("GetEnableSingleFrameMode() = false, want true")
	}
	if got := cfg.GetHitLogOdds(); got != 1.2 {
		t.Errorf("GetHitLogOdds() = %v, want 1.2", got)
	}
	if got := cfg.GetCheckpointInterval(); got != 5*time.Minute {
		t.Errorf("GetCheckpointInterval() = %v, want 5m", got)
	}

	// Omitted fields keep their defaults.
	if cfg.MissLogOdds != nil {
		t.Errorf("Expected MissLogOdds nil, got %v", *cfg.MissLogOdds)
	}
	if got := cfg.GetMissLogOdds(); got != -0.4 {
		t.Errorf("GetMissLogOdds() = %v, want -0.4", got)
	}
}

func TestLoadTuningConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "config.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"map_length": }`, "parse"},
		{"zero length", "c.json", `{"map_length": 0}`, "map_length"},
		{"negative resolution", "c.json", `{"map_resolution": -1}`, "map_resolution"},
		{"length under one cell", "c.json", `{"map_length": 0.1, "map_resolution": 0.5}`, "no cells"},
		{"positive miss", "c.json", `{"bbf_miss_log_odds": 0.2}`, "miss < 0 < hit"},
		{"zero hit", "c.json", `{"bbf_hit_log_odds": 0}`, "miss < 0 < hit"},
		{"inverted bounds", "c.json", `{"bbf_p_min": 0.9, "bbf_p_max": 0.2}`, "p_min < p_max"},
		{"p_max of one", "c.json", `{"bbf_p_max": 1}`, "p_min < p_max"},
		{"inverted height window", "c.json", `{"min_height": 3, "max_height": 1}`, "min_height"},
		{"zero voxel", "c.json", `{"filter_obstacle_pointcloud_by_raw_pointcloud": true, "common_voxel_size": 0}`, "common_voxel_size"},
		{"bad interval", "c.json", `{"checkpoint_interval": "soon"}`, "checkpoint_interval"},
		{"zero snapshot_every", "c.json", `{"snapshot_every": 0}`, "snapshot_every"},
		{"negative keep", "c.json", `{"snapshot_keep": -1}`, "snapshot_keep"},
		{"zero max range", "c.json", `{"max_range": 0}`, "max_range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig_MissingFile(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	if err := os.WriteFile(path, make([]byte, 1024*1024+1), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadTuningConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected too large error, got %v", err)
	}
}

func TestHeightWindowIgnoredWhenFilterDisabled(t *testing.T) {
	path := writeConfig(t, "c.json", `{"use_height_filter": false, "min_height": 3, "max_height": 1}`)
	if _, err := LoadTuningConfig(path); err != nil {
		t.Fatalf("disabled filter should not validate its window: %v", err)
	}
}

func TestCheckpointIntervalZeroDisables(t *testing.T) {
	path := writeConfig(t, "c.json", `{"checkpoint_interval": "0s"}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.GetCheckpointInterval(); got != 0 {
		t.Errorf("GetCheckpointInterval() = %v, want 0", got)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	// The shipped defaults file agrees with the built-in defaults.
	if cfg.GetMapLength() != empty.GetMapLength() {
		t.Errorf("map_length: file %v, built-in %v", cfg.GetMapLength(), empty.GetMapLength())
	}
	if cfg.GetMapResolution() != empty.GetMapResolution() {
		t.Errorf("map_resolution: file %v, built-in %v", cfg.GetMapResolution(), empty.GetMapResolution())
	}
	if cfg.GetHitLogOdds() != empty.GetHitLogOdds() || cfg.GetMissLogOdds() != empty.GetMissLogOdds() {
		t.Error("bbf log-odds in defaults file differ from built-in defaults")
	}
	if cfg.GetPMin() != empty.GetPMin() || cfg.GetPMax() != empty.GetPMax() {
		t.Error("bbf bounds in defaults file differ from built-in defaults")
	}
	if cfg.GetCheckpointInterval() != empty.GetCheckpointInterval() {
		t.Errorf("checkpoint_interval: file %v, built-in %v", cfg.GetCheckpointInterval(), empty.GetCheckpointInterval())
	}
	if cfg.GetSnapshotKeep() != empty.GetSnapshotKeep() {
		t.Errorf("snapshot_keep: file %d, built-in %d", cfg.GetSnapshotKeep(), empty.GetSnapshotKeep())
	}
}
