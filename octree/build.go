package octree

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/vct/logging"
	"go.viam.com/vct/voxel"
)

// Builder builds octrees from fragment lists with a fixed configuration.
type Builder struct {
	cfg    Config
	logger logging.Logger
}

// NewBuilder validates cfg and returns a Builder. An invalid configuration is reported here,
// before any build runs.
func NewBuilder(cfg Config, logger logging.Logger) (*Builder, error) {
	if err := cfg.Validate("octree"); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg.withDefaults(), logger: logger}, nil
}

// Config returns the configuration with defaults applied.
func (b *Builder) Config() Config {
	return b.cfg
}

// NewPool allocates a node pool sized by the configuration.
func (b *Builder) NewPool() (*NodePool, error) {
	return NewNodePool(b.cfg.NodePoolCapacity, b.cfg.NumLevels)
}

// Build allocates a pool and builds the octree of the fragments covered by cmd into it.
func (b *Builder) Build(ctx context.Context, fragments *voxel.FragmentList, cmd voxel.DispatchCommand) (*NodePool, Stats, error) {
	pool, err := b.NewPool()
	if err != nil {
		return nil, Stats{}, err
	}
	stats, err := b.BuildInto(ctx, pool, fragments, cmd)
	if err != nil {
		return nil, Stats{}, err
	}
	return pool, stats, nil
}

// BuildInto resets pool and builds the octree of the fragments covered by cmd into it.
//
// The context is only consulted before the first pass; once started, a build runs to completion.
// Errors come from invalid arguments or from a panic inside a pass. Running out of node pool space
// or meeting fragments outside the grid is not an error and is reported through Stats.
func (b *Builder) BuildInto(ctx context.Context, pool *NodePool, fragments *voxel.FragmentList, cmd voxel.DispatchCommand) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	if pool.NumLevels() != b.cfg.NumLevels {
		return Stats{}, errors.Errorf("pool has %d levels, builder is configured for %d", pool.NumLevels(), b.cfg.NumLevels)
	}
	if int(cmd.End()) > fragments.Len() {
		return Stats{}, errors.Errorf("dispatch covers fragments up to %d but the list holds %d", cmd.End(), fragments.Len())
	}

	start := time.Now()
	if err := pool.Reset(b.cfg.Workers); err != nil {
		return Stats{}, errors.Wrap(err, "resetting node pool")
	}

	pl := NewPipeline(b.cfg, pool, fragments, cmd, b.logger)
	lvl := pl.RootLevel()
	for lvl.Level < pool.NumLevels()-1 {
		flagged, err := pl.Flag(ctx, lvl)
		if err != nil {
			return Stats{}, err
		}
		if flagged.Flagged == 0 {
			break
		}
		next, err := pl.Subdivide(ctx, flagged)
		if err != nil {
			return Stats{}, err
		}
		if next.Nodes.Count == 0 {
			break
		}
		lvl = next
	}

	leaves, err := pl.WriteLeaves(ctx, lvl)
	if err != nil {
		return Stats{}, err
	}
	if _, err := pl.Mipmap(ctx, leaves); err != nil {
		return Stats{}, err
	}

	stats := pl.stats(time.Since(start))
	b.logger.CDebugw(ctx, "octree built",
		"fragments", stats.Fragments,
		"written", stats.FragmentsWritten,
		"nodes", stats.NodesAllocated,
		"levels", stats.LevelsBuilt,
		"duration", stats.Duration)
	if stats.CapacityExceeded() > 0 {
		b.logger.Warnw("octree build exceeded capacity",
			"fragments_dropped", stats.FragmentsDropped,
			"truncated_fragments", stats.TruncatedFragments,
			"allocation_failures", stats.AllocationFailures)
	}
	return stats, nil
}
