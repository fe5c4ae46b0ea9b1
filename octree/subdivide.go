package octree

import (
	"context"

	"github.com/pkg/errors"
)

// Subdivide gives every flagged node of the level a block of ChildrenPerNode children. It runs one
// invocation per node of the level. The allocated blocks form the next level.
//
// When the pool cannot hold a block for every flagged node, no node of the level is subdivided:
// each flagged node keeps no children, loses its flag and counts as an allocation failure. The
// tree then ends at this level whatever the number of workers.
func (pl *Pipeline) Subdivide(ctx context.Context, flagged FlagResult) (LevelResult, error) {
	lvl := flagged.Level
	if lvl+1 >= pl.pool.NumLevels() {
		return LevelResult{}, errors.Errorf("level %d is the leaf level and cannot be subdivided", lvl)
	}
	if lvl != pl.pool.BuiltLevels()-1 {
		return LevelResult{}, errors.Errorf("level %d is not the deepest built level %d", lvl, pl.pool.BuiltLevels()-1)
	}

	start := pl.pool.cursor.Load()
	failuresBefore := pl.counters.allocFailures.Load()
	if free := uint64(pl.pool.Capacity()) - uint64(start); flagged.Flagged*ChildrenPerNode > free {
		return pl.truncateLevel(ctx, flagged, start, failuresBefore)
	}
	err := pl.dispatch(flagged.Nodes, func(idx uint32) {
		next := &pl.pool.nodes[idx].next
		if next.Load()&FlagBit == 0 {
			return
		}
		child, ok := pl.pool.allocBlock()
		if !ok {
			next.Store(NoChildren)
			pl.counters.allocFailures.Inc()
			return
		}
		next.Store(child)
	})
	if err != nil {
		return LevelResult{}, errors.Wrapf(err, "subdivide pass at level %d", lvl)
	}
	end := pl.pool.cursor.Load()

	children := Range{Start: start, End: end}
	if children.Len() > 0 {
		pl.pool.levels = append(pl.pool.levels, children)
	}
	if failures := pl.counters.allocFailures.Load() - failuresBefore; failures > 0 {
		pl.logger.Warnw("node pool capacity exceeded, tree truncated",
			"level", lvl, "failed_nodes", failures, "capacity", pl.pool.Capacity())
	}
	pl.logger.CDebugw(ctx, "subdivide pass done", "level", lvl, "allocated", children.Len())
	return LevelResult{Level: lvl + 1, Nodes: children.Command()}, nil
}

// truncateLevel clears the flags of a level that does not fit in the pool and returns the empty
// level below it.
func (pl *Pipeline) truncateLevel(ctx context.Context, flagged FlagResult, start uint32, failuresBefore uint64) (LevelResult, error) {
	err := pl.dispatch(flagged.Nodes, func(idx uint32) {
		next := &pl.pool.nodes[idx].next
		if next.Load()&FlagBit == 0 {
			return
		}
		next.Store(NoChildren)
		pl.counters.allocFailures.Inc()
	})
	if err != nil {
		return LevelResult{}, errors.Wrapf(err, "truncating level %d", flagged.Level)
	}
	pl.logger.Warnw("node pool capacity exceeded, tree truncated",
		"level", flagged.Level,
		"failed_nodes", pl.counters.allocFailures.Load()-failuresBefore,
		"needed", flagged.Flagged*ChildrenPerNode,
		"capacity", pl.pool.Capacity())
	pl.logger.CDebugw(ctx, "subdivide pass done", "level", flagged.Level, "allocated", 0)
	return LevelResult{Level: flagged.Level + 1, Nodes: Range{Start: start, End: start}.Command()}, nil
}
