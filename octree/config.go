package octree

import (
	goutils "go.viam.com/utils"

	"go.viam.com/vct/utils"
)

// Config describes the shape of the tree and how it is built.
type Config struct {
	NumLevels        int `json:"num_levels"`
	NodePoolCapacity int `json:"node_pool_capacity"`
	// Workers is the parallelism of every pass; 1 forces serial execution, 0 picks a default.
	Workers    int        `json:"workers,omitempty"`
	Reduction  Reduction  `json:"reduction,omitempty"`
	ColorSpace ColorSpace `json:"color_space,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.NumLevels == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "num_levels")
	}
	if cfg.NumLevels < 1 || cfg.NumLevels > MaxLevels {
		return utils.NewConfigValidationFieldRangeError(path, "num_levels", cfg.NumLevels, 1, MaxLevels)
	}
	if cfg.NodePoolCapacity == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "node_pool_capacity")
	}
	if cfg.NodePoolCapacity < 1 || cfg.NodePoolCapacity > MaxNodePoolCapacity {
		return utils.NewConfigValidationFieldRangeError(path, "node_pool_capacity", cfg.NodePoolCapacity, 1, MaxNodePoolCapacity)
	}
	if cfg.Workers < 0 {
		return utils.NewConfigValidationFieldRangeError(path, "workers", cfg.Workers, 0, "unbounded")
	}
	switch cfg.Reduction {
	case "", ReductionAverage, ReductionWeighted:
	default:
		return utils.NewConfigValidationFieldChoiceError(path, "reduction", string(cfg.Reduction),
			string(ReductionAverage), string(ReductionWeighted))
	}
	switch cfg.ColorSpace {
	case "", ColorSpaceSRGB, ColorSpaceLinear:
	default:
		return utils.NewConfigValidationFieldChoiceError(path, "color_space", string(cfg.ColorSpace),
			string(ColorSpaceSRGB), string(ColorSpaceLinear))
	}
	return nil
}

func (cfg Config) withDefaults() Config {
	if cfg.Reduction == "" {
		cfg.Reduction = ReductionAverage
	}
	if cfg.ColorSpace == "" {
		cfg.ColorSpace = ColorSpaceSRGB
	}
	return cfg
}
