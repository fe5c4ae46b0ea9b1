package octree

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/vct/voxel"
)

// Mipmap aggregates colors upwards one level at a time, from the level above the deepest built
// one to the root. Level l starts only once level l+1 is complete. Each node reduces its occupied
// children; children no fragment reached are left out.
func (pl *Pipeline) Mipmap(ctx context.Context, leaves LeafResult) (MipmapResult, error) {
	deepest := pl.pool.BuiltLevels() - 1
	for l := deepest - 1; l >= 0; l-- {
		if err := pl.mipmapLevel(pl.pool.Level(l).Command()); err != nil {
			return MipmapResult{}, errors.Wrapf(err, "mipmap pass at level %d", l)
		}
		pl.logger.CDebugw(ctx, "mipmap pass done", "level", l)
	}
	root := pl.pool.Root()
	pl.logger.CDebugw(ctx, "mipmap done", "leaves", leaves.Leaves.Count, "root_count", root.Count)
	return MipmapResult{Levels: deepest, Root: root}, nil
}

func (pl *Pipeline) mipmapLevel(nodes voxel.DispatchCommand) error {
	return pl.dispatch(nodes, func(idx uint32) {
		n := &pl.pool.nodes[idx]
		child := n.next.Load() & PointerMask
		if child == NoChildren {
			return
		}
		var children [ChildrenPerNode]NodeRecord
		for i := range children {
			children[i] = pl.pool.nodes[child+uint32(i)].record()
		}
		c, count := pl.reducer.reduce(children[:])
		n.color = voxel.PackColor(c)
		n.count.Store(count)
	})
}
