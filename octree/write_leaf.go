package octree

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/vct/voxel"
)

// WriteLeaves adds every fragment's color into the leaf that owns it and then resolves each leaf
// to the rounded mean of what it received. It takes the deepest level reached by subdivision.
//
// The first pass runs per fragment and only adds into atomic channel sums and a count, which makes
// the outcome independent of the order fragments land in. The second pass runs per leaf after the
// first has fully finished. Fragments outside the grid are dropped as malformed; fragments whose
// path ends above the leaf level because the pool ran out are dropped as truncated.
func (pl *Pipeline) WriteLeaves(ctx context.Context, deepest LevelResult) (LeafResult, error) {
	leafLevel := pl.pool.NumLevels() - 1
	if deepest.Level != pl.pool.BuiltLevels()-1 {
		return LeafResult{}, errors.Errorf("level %d is not the deepest built level %d", deepest.Level, pl.pool.BuiltLevels()-1)
	}

	writtenBefore := pl.counters.written.Load()
	malformedBefore := pl.counters.malformed.Load()
	truncatedBefore := pl.counters.truncated.Load()
	err := pl.dispatch(pl.fragCmd, func(i uint32) {
		frag, ok := pl.fragmentInGrid(i)
		if !ok {
			pl.counters.malformed.Inc()
			return
		}
		idx, ok := pl.pool.descend(frag.Pos, leafLevel)
		if !ok {
			pl.counters.truncated.Inc()
			return
		}
		leaf := &pl.pool.nodes[idx]
		expanded := pl.reducer.codec.expand(frag.Color)
		for c := range leaf.sums {
			leaf.sums[c].Add(expanded[c])
		}
		leaf.count.Inc()
		pl.counters.written.Inc()
	})
	if err != nil {
		return LeafResult{}, errors.Wrap(err, "leaf write pass")
	}

	leaves := pl.pool.Level(leafLevel).Command()
	if err := pl.resolveLeaves(leaves); err != nil {
		return LeafResult{}, err
	}

	written := pl.counters.written.Load() - writtenBefore
	if malformed := pl.counters.malformed.Load() - malformedBefore; malformed > 0 {
		pl.logger.Warnw("dropped fragments outside the voxel grid", "dropped", malformed, "resolution", pl.pool.Resolution())
	}
	if truncated := pl.counters.truncated.Load() - truncatedBefore; truncated > 0 {
		pl.logger.Warnw("dropped fragments below truncated nodes", "dropped", truncated)
	}
	pl.logger.CDebugw(ctx, "leaf write pass done", "leaves", leaves.Count, "written", written)
	return LeafResult{Leaves: leaves, Written: written}, nil
}

func (pl *Pipeline) resolveLeaves(leaves voxel.DispatchCommand) error {
	err := pl.dispatch(leaves, func(idx uint32) {
		leaf := &pl.pool.nodes[idx]
		count := leaf.count.Load()
		if count == 0 {
			return
		}
		var sums accum
		for c := range sums {
			sums[c] = leaf.sums[c].Load()
		}
		leaf.color = voxel.PackColor(pl.reducer.resolve(sums, count))
	})
	return errors.Wrap(err, "leaf resolve pass")
}
