package octree

import (
	"context"
	"image/color"
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/vct/logging"
	"go.viam.com/vct/pointcloud"
	"go.viam.com/vct/voxel"
)

// nodeState is what a node holds independently of where in the pool it was allocated.
type nodeState struct {
	Color       color.NRGBA
	Count       uint32
	HasChildren bool
}

// snapshot keys every node by its position in the tree so trees with different pool layouts can be
// compared.
func snapshot(tree Octree) map[Position]nodeState {
	out := map[Position]nodeState{}
	tree.Walk(func(pos Position, idx uint32, rec NodeRecord) bool {
		out[pos] = nodeState{Color: rec.Color, Count: rec.Count, HasChildren: rec.HasChildren()}
		return true
	})
	return out
}

// validateOctree checks the structural invariants of a built tree: every allocated node is
// reachable exactly once, lives in the range of its level, points only into the next level, child
// blocks never overlap and a parent's count is the sum of its children's.
func validateOctree(t *testing.T, pool *NodePool) {
	t.Helper()

	visited := map[uint32]bool{}
	blocks := map[uint32]bool{}
	pool.Walk(func(pos Position, idx uint32, rec NodeRecord) bool {
		test.That(t, visited[idx], test.ShouldBeFalse)
		visited[idx] = true
		test.That(t, pool.Level(pos.Level).Contains(idx), test.ShouldBeTrue)
		test.That(t, rec.Flagged(), test.ShouldBeFalse)

		if !rec.HasChildren() {
			return true
		}
		child := rec.Child()
		test.That(t, blocks[child], test.ShouldBeFalse)
		blocks[child] = true

		next := pool.Level(pos.Level + 1)
		test.That(t, next.Contains(child), test.ShouldBeTrue)
		test.That(t, next.Contains(child+ChildrenPerNode-1), test.ShouldBeTrue)
		test.That(t, (child-next.Start)%ChildrenPerNode, test.ShouldEqual, 0)

		var sum uint32
		for i := uint32(0); i < ChildrenPerNode; i++ {
			sum += pool.Node(child + i).Count
		}
		test.That(t, rec.Count, test.ShouldEqual, sum)
		return true
	})
	test.That(t, len(visited), test.ShouldEqual, pool.NodeCount())
}

func newFragmentList(t *testing.T, frags []voxel.Fragment) (*voxel.FragmentList, voxel.DispatchCommand) {
	t.Helper()
	capacity := len(frags)
	if capacity == 0 {
		capacity = 1
	}
	list, err := voxel.NewFragmentList(capacity)
	test.That(t, err, test.ShouldBeNil)
	for _, f := range frags {
		test.That(t, list.Append(f), test.ShouldBeTrue)
	}
	return list, list.Finalize()
}

func buildTree(t *testing.T, cfg Config, frags []voxel.Fragment) (*NodePool, Stats) {
	t.Helper()
	builder, err := NewBuilder(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	list, cmd := newFragmentList(t, frags)
	pool, stats, err := builder.Build(context.Background(), list, cmd)
	test.That(t, err, test.ShouldBeNil)
	return pool, stats
}

func randomFragments(seed int64, n, resolution int, colorOf func(r *rand.Rand) color.NRGBA) []voxel.Fragment {
	r := rand.New(rand.NewSource(seed))
	frags := make([]voxel.Fragment, n)
	for i := range frags {
		frags[i] = voxel.Fragment{
			Pos: pointcloud.VoxelCoords{
				I: int64(r.Intn(resolution)),
				J: int64(r.Intn(resolution)),
				K: int64(r.Intn(resolution)),
			},
			Color: colorOf(r),
		}
	}
	return frags
}

func randomColor(r *rand.Rand) color.NRGBA {
	return color.NRGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: uint8(r.Intn(256))}
}

func coords(i, j, k int64) pointcloud.VoxelCoords {
	return pointcloud.VoxelCoords{I: i, J: j, K: k}
}
