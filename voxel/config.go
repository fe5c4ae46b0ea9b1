package voxel

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/vct/utils"
)

// Config describes how point clouds are voxelized.
type Config struct {
	FragmentCapacity int `json:"fragment_capacity"`

	// SceneMin and SceneMax bound the voxel grid in cloud units. When both are left zero the
	// bounds of each cloud are used instead.
	SceneMin [3]float64 `json:"scene_min,omitempty"`
	SceneMax [3]float64 `json:"scene_max,omitempty"`

	Workers int `json:"workers,omitempty"`
}

// HasSceneBounds reports whether fixed scene bounds were configured.
func (cfg Config) HasSceneBounds() bool {
	return cfg.SceneMin != cfg.SceneMax
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.FragmentCapacity == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "fragment_capacity")
	}
	if cfg.FragmentCapacity < 0 || cfg.FragmentCapacity > MaxFragmentCapacity {
		return utils.NewConfigValidationFieldRangeError(path, "fragment_capacity", cfg.FragmentCapacity, 1, MaxFragmentCapacity)
	}
	if cfg.Workers < 0 {
		return utils.NewConfigValidationFieldRangeError(path, "workers", cfg.Workers, 0, "unbounded")
	}
	if cfg.HasSceneBounds() {
		for axis := range cfg.SceneMin {
			if cfg.SceneMax[axis] < cfg.SceneMin[axis] {
				return goutils.NewConfigValidationError(path,
					errInvertedBounds(axis, cfg.SceneMin[axis], cfg.SceneMax[axis]))
			}
		}
	}
	return nil
}

func errInvertedBounds(axis int, low, high float64) error {
	return errors.Errorf("scene_max[%d] (%f) is below scene_min[%d] (%f)", axis, high, axis, low)
}
