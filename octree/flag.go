package octree

import (
	"context"

	"github.com/pkg/errors"
)

// Flag marks every node of the given level that at least one fragment falls into. It runs one
// invocation per fragment; each walks to its node at the level and sets the flag bit. Setting
// the bit is idempotent so any number of fragments may race on the same node.
//
// Fragments outside the grid, or whose path ends above the level, flag nothing.
func (pl *Pipeline) Flag(ctx context.Context, lvl LevelResult) (FlagResult, error) {
	if lvl.Level+1 >= pl.pool.NumLevels() {
		return FlagResult{}, errors.Errorf("level %d is the leaf level and cannot be flagged", lvl.Level)
	}
	if lvl.Level != pl.pool.BuiltLevels()-1 {
		return FlagResult{}, errors.Errorf("level %d is not the deepest built level %d", lvl.Level, pl.pool.BuiltLevels()-1)
	}
	before := pl.counters.flagged.Load()
	err := pl.dispatch(pl.fragCmd, func(i uint32) {
		frag, ok := pl.fragmentInGrid(i)
		if !ok {
			return
		}
		idx, ok := pl.pool.descend(frag.Pos, lvl.Level)
		if !ok {
			return
		}
		if pl.pool.setFlag(idx) {
			pl.counters.flagged.Inc()
		}
	})
	if err != nil {
		return FlagResult{}, errors.Wrapf(err, "flag pass at level %d", lvl.Level)
	}
	flagged := pl.counters.flagged.Load() - before
	pl.logger.CDebugw(ctx, "flag pass done", "level", lvl.Level, "nodes", lvl.Nodes.Count, "flagged", flagged)
	return FlagResult{LevelResult: lvl, Flagged: flagged}, nil
}
