package frameloop

import (
	"time"

	"go.viam.com/vct/utils"
)

const (
	defaultFrameRateHz = 30
	defaultStatsWindow = 120
)

// Config describes how often the octree is rebuilt and how much build history is kept.
type Config struct {
	FrameRateHz float64 `json:"frame_rate_hz,omitempty"`
	StatsWindow int     `json:"stats_window,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.FrameRateHz < 0 {
		return utils.NewConfigValidationFieldRangeError(path, "frame_rate_hz", cfg.FrameRateHz, 0, "unbounded")
	}
	if cfg.StatsWindow < 0 {
		return utils.NewConfigValidationFieldRangeError(path, "stats_window", cfg.StatsWindow, 0, "unbounded")
	}
	return nil
}

// Interval is the target time between frame starts.
func (cfg Config) Interval() time.Duration {
	hz := cfg.FrameRateHz
	if hz == 0 {
		hz = defaultFrameRateHz
	}
	return time.Duration(float64(time.Second) / hz)
}

func (cfg Config) statsWindow() int {
	if cfg.StatsWindow == 0 {
		return defaultStatsWindow
	}
	return cfg.StatsWindow
}
