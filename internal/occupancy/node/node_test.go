package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.map/internal/config"
	"github.com/banshee-data/occupancy.map/internal/monitoring"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.map/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func smallTuning() *config.TuningConfig {
	length, res, maxRange := 40.0, 0.5, 20.0
	return &config.TuningConfig{MapLength: &length, MapResolution: &res, MaxRange: &maxRange}
}

func TestPipelineConfig_Defaults(t *testing.T) {
	cfg, err := PipelineConfig(config.EmptyTuningConfig())
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeFused, cfg.Mode)
	assert.Equal(t, "map", cfg.FrameID)
	assert.Equal(t, 200, cfg.Frame.Width)
	assert.Equal(t, 200, cfg.Frame.Height)
	assert.Equal(t, 0.5, cfg.Frame.Resolution)
	assert.Equal(t, 0.85, cfg.BBF.HitLogOdds)
	assert.Equal(t, 0.97, cfg.BBF.PMax)
}

func TestPipelineConfig_SingleFrame(t *testing.T) {
	on := true
	tc := smallTuning()
	tc.EnableSingleFrameMode = &on
	cfg, err := PipelineConfig(tc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeSingleFrame, cfg.Mode)
	assert.Equal(t, 80, cfg.Frame.Width)
}

func TestPreprocessConfig(t *testing.T) {
	on, voxel := true, 0.2
	tc := config.EmptyTuningConfig()
	tc.FilterObstacleByRaw = &on
	tc.CommonVoxelSize = &voxel
	pc := PreprocessConfig(tc)
	assert.True(t, pc.UseHeightFilter)
	assert.Equal(t, -1.0, pc.MinHeightM)
	assert.Equal(t, 2.0, pc.MaxHeightM)
	assert.True(t, pc.FilterObstacleByRaw)
	assert.Equal(t, 0.2, pc.CommonVoxelSizeM)
}

func TestNew_RejectsInvalidTuning(t *testing.T) {
	bad := -0.1
	tc := config.EmptyTuningConfig()
	tc.HitLogOdds = &bad
	_, err := New(Options{Tuning: tc})
	assert.Error(t, err)
}

func TestStep_PublishesSnapshots(t *testing.T) {
	n, err := New(Options{Tuning: smallTuning(), Seed: 1, Boxes: 4})
	require.NoError(t, err)
	defer n.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Step())
	}
	assert.Equal(t, 5, n.Cycles())
	snap := n.Processor().Latest()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(5), snap.Sequence)
	assert.Positive(t, snap.Counts().Free)
}

func TestStep_PoseDropoutIsNotAnError(t *testing.T) {
	n, err := New(Options{Tuning: smallTuning(), Seed: 1, Boxes: 2, PoseDropout: 1})
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Step())
	assert.Nil(t, n.Processor().Latest())
	assert.Equal(t, uint64(1), n.Processor().Stats().Skipped)
}

func TestCheckpoint_RestoredOnRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occupancy.db")

	n, err := New(Options{Tuning: smallTuning(), DBPath: path, Seed: 2, Boxes: 4})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, n.Step())
	}
	require.NoError(t, n.SaveCheckpoint())
	want := n.Processor().Checkpoint()
	require.NoError(t, n.Close())

	restarted, err := New(Options{Tuning: smallTuning(), DBPath: path, Seed: 2, Boxes: 4})
	require.NoError(t, err)
	defer restarted.Close()
	assert.Equal(t, want, restarted.Processor().Checkpoint())
}

func TestCheckpoint_LayoutChangeIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occupancy.db")

	n, err := New(Options{Tuning: smallTuning(), DBPath: path, Seed: 2, Boxes: 4})
	require.NoError(t, err)
	require.NoError(t, n.Step())
	require.NoError(t, n.SaveCheckpoint())
	require.NoError(t, n.Close())

	tc := smallTuning()
	res := 0.25
	tc.MapResolution = &res
	restarted, err := New(Options{Tuning: tc, DBPath: path})
	require.NoError(t, err)
	defer restarted.Close()
	assert.Zero(t, restarted.Processor().Checkpoint().Updates)
}

func TestHandler_ServesStats(t *testing.T) {
	n, err := New(Options{Tuning: smallTuning(), DBPath: filepath.Join(t.TempDir(), "o.db"), Seed: 3, Boxes: 2})
	require.NoError(t, err)
	defer n.Close()
	require.NoError(t, n.Step())

	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/occupancy/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "pipeline")
	assert.Contains(t, body, "preprocess")
	assert.Contains(t, body, "gridstore")
	assert.NotContains(t, body, "visualiser")
}

func TestHandler_StatsReadableWhileStepping(t *testing.T) {
	n, err := New(Options{Tuning: smallTuning(), DBPath: filepath.Join(t.TempDir(), "o.db"), Seed: 4, Boxes: 3})
	require.NoError(t, err)
	defer n.Close()

	const steps = 20
	done := make(chan error, 1)
	go func() {
		for i := 0; i < steps; i++ {
			if err := n.Step(); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < steps; i++ {
		rec := httptest.NewRecorder()
		n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/occupancy/stats", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	require.NoError(t, <-done)

	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/occupancy/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Preprocess struct {
			Cycles int64 `json:"cycles"`
		} `json:"preprocess"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(steps), body.Preprocess.Cycles)
}

func TestRun_CycleBudgetWithMockClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	path := filepath.Join(t.TempDir(), "o.db")
	n, err := New(Options{
		Tuning: smallTuning(),
		DBPath: path,
		Period: 100 * time.Millisecond,
		Cycles: 3,
		Seed:   4,
		Boxes:  3,
		Clock:  clock,
	})
	require.NoError(t, err)
	defer n.Close()

	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background()) }()

	// Cycle ticker plus checkpoint ticker.
	require.Eventually(t, func() bool { return clock.Tickers() >= 2 }, time.Second, time.Millisecond)
	for i := 1; i <= 3; i++ {
		clock.Advance(100 * time.Millisecond)
		want := i
		require.Eventually(t, func() bool { return n.Cycles() >= want }, time.Second, time.Millisecond)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the cycle budget")
	}

	// Run writes a final checkpoint on the way out.
	cp, err := n.store.LatestCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cp.Updates)
}

func TestRun_StopsOnCancel(t *testing.T) {
	n, err := New(Options{Tuning: smallTuning(), Period: time.Hour})
	require.NoError(t, err)
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, n.Cycles())
}
