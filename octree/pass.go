package octree

import (
	"go.uber.org/atomic"

	"go.viam.com/vct/logging"
	"go.viam.com/vct/utils"
	"go.viam.com/vct/voxel"
)

// Each pass takes the result of the pass it depends on, so the order of a build is carried by
// the types: LevelResult -> Flag -> FlagResult -> Subdivide -> LevelResult ... -> WriteLeaves ->
// LeafResult -> Mipmap -> MipmapResult.

// LevelResult describes a level whose nodes are allocated.
type LevelResult struct {
	Level int
	Nodes voxel.DispatchCommand
}

// FlagResult is the outcome of flagging the nodes of a level.
type FlagResult struct {
	LevelResult
	// Flagged is the number of nodes at the level that were flagged.
	Flagged uint64
}

// LeafResult is the outcome of writing fragments into leaves and resolving their colors.
type LeafResult struct {
	Leaves  voxel.DispatchCommand
	Written uint64
}

// MipmapResult is the outcome of aggregating every level above the leaves.
type MipmapResult struct {
	Levels int
	Root   NodeRecord
}

// counters are incremented from inside passes.
type counters struct {
	malformed     atomic.Uint64
	truncated     atomic.Uint64
	allocFailures atomic.Uint64
	flagged       atomic.Uint64
	written       atomic.Uint64
}

// Pipeline runs the passes of one build over a pool and a fragment list.
type Pipeline struct {
	workers   int
	pool      *NodePool
	fragments *voxel.FragmentList
	fragCmd   voxel.DispatchCommand
	reducer   reducer
	logger    logging.Logger
	counters  counters
}

// NewPipeline prepares the passes of a build. The pool must be freshly created or Reset and
// fragCmd must come from the fragment list's Finalize.
func NewPipeline(
	cfg Config,
	pool *NodePool,
	fragments *voxel.FragmentList,
	fragCmd voxel.DispatchCommand,
	logger logging.Logger,
) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		workers:   cfg.Workers,
		pool:      pool,
		fragments: fragments,
		fragCmd:   fragCmd,
		reducer:   newReducer(cfg),
		logger:    logger,
	}
}

// RootLevel is the starting point of a build: level 0 holding only the root.
func (pl *Pipeline) RootLevel() LevelResult {
	return LevelResult{Level: 0, Nodes: pl.pool.Level(0).Command()}
}

// dispatch runs work once for every index covered by cmd and returns after all of them finished.
func (pl *Pipeline) dispatch(cmd voxel.DispatchCommand, work func(idx uint32)) error {
	return utils.GroupWorkParallel(pl.workers, int(cmd.Count), nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				work(cmd.First + uint32(workNum))
			}, nil
		})
}

// fragmentInGrid fetches fragment i and reports whether it addresses a leaf of the tree.
func (pl *Pipeline) fragmentInGrid(i uint32) (voxel.Fragment, bool) {
	frag := pl.fragments.At(i)
	return frag, frag.Pos.InGrid(int64(pl.pool.Resolution()))
}
