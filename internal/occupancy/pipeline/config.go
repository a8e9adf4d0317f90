package pipeline

import (
	"fmt"

	"github.com/banshee-data/occupancy.map/internal/occupancy/bbf"
	"github.com/banshee-data/occupancy.map/internal/occupancy/frame"
)

// Mode selects what a cycle publishes.
type Mode string

const (
	// ModeFused publishes the temporally fused belief grid.
	ModeFused Mode = "fused"
	// ModeSingleFrame publishes each observation frame directly.
	ModeSingleFrame Mode = "single_frame"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFused || m == ModeSingleFrame
}

// Config holds everything a Processor needs.
type Config struct {
	Mode    Mode
	FrameID string
	Frame   frame.Config
	BBF     bbf.Params
}

// DefaultConfig returns a fused 100 m x 100 m grid at 0.5 m resolution.
func DefaultConfig() Config {
	return Config{
		Mode:    ModeFused,
		FrameID: "map",
		Frame: frame.Config{
			Width:      200,
			Height:     200,
			Resolution: 0.5,
			MaxRange:   50,
		},
		BBF: bbf.DefaultParams(),
	}
}

// Validate checks the configuration. Invalid values are reported, never
// replaced by defaults.
func (c Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("pipeline: unknown mode %q", c.Mode)
	}
	if err := c.Frame.Validate(); err != nil {
		return err
	}
	return c.BBF.Validate()
}

// WithMode returns a copy with the mode replaced.
func (c Config) WithMode(m Mode) Config {
	c.Mode = m
	return c
}

// WithFrameID returns a copy with the published frame id replaced.
func (c Config) WithFrameID(id string) Config {
	c.FrameID = id
	return c
}
