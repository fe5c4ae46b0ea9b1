// Package config defines the structures to configure the octree pipeline and how to read them.
package config

import (
	"go.viam.com/vct/frameloop"
	"go.viam.com/vct/logging"
	"go.viam.com/vct/octree"
	"go.viam.com/vct/voxel"
)

// A Config describes the configuration of the whole pipeline.
type Config struct {
	Octree       octree.Config    `json:"octree"`
	Voxelization voxel.Config     `json:"voxelization"`
	FrameLoop    frameloop.Config `json:"frame_loop,omitempty"`

	// LogLevel is the level of the pipeline's logger; empty means info.
	LogLevel string `json:"log_level,omitempty"`

	// ConfigFilePath is the path of the file the config was read from, if any.
	ConfigFilePath string `json:"-"`
}

// Ensure ensures all parts of the config are valid.
func (c *Config) Ensure(logger logging.Logger) error {
	if err := c.Octree.Validate("octree"); err != nil {
		return err
	}
	if err := c.Voxelization.Validate("voxelization"); err != nil {
		return err
	}
	if err := c.FrameLoop.Validate("frame_loop"); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return err
		}
	}
	if minNodes := 1 + octree.ChildrenPerNode*(c.Octree.NumLevels-1); c.Octree.NodePoolCapacity < minNodes {
		logger.Warnw("node pool cannot hold the path to a single leaf; every build will be truncated",
			"node_pool_capacity", c.Octree.NodePoolCapacity,
			"needed", minNodes)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logging.Level {
	if c.LogLevel == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}
