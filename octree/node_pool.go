package octree

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/vct/pointcloud"
	"go.viam.com/vct/utils"
	"go.viam.com/vct/voxel"
)

// node is the in-pool representation of a node. next, sums and count are shared between the
// invocations of a pass and only touched atomically; color is written by the node's own
// invocation and read by later passes.
type node struct {
	next  atomic.Uint32
	sums  [4]atomic.Uint64
	count atomic.Uint32
	color uint32
}

func (n *node) record() NodeRecord {
	return NodeRecord{
		Next:  n.next.Load(),
		Color: voxel.UnpackColor(n.color),
		Count: n.count.Load(),
	}
}

func (n *node) clear() {
	n.next.Store(NoChildren)
	for i := range n.sums {
		n.sums[i].Store(0)
	}
	n.count.Store(0)
	n.color = 0
}

// NodePool is the fixed capacity backing store of an octree. Nodes are handed out by a bump
// allocator that never moves backwards within a build; Reset rewinds it for the next build.
type NodePool struct {
	numLevels int
	nodes     []node
	cursor    atomic.Uint32
	levels    []Range
}

// NewNodePool allocates a pool of capacity nodes for trees of numLevels levels. The pool starts
// out holding just the root.
func NewNodePool(capacity, numLevels int) (*NodePool, error) {
	if numLevels < 1 || numLevels > MaxLevels {
		return nil, errors.Errorf("num_levels must be in [1, %d], got %d", MaxLevels, numLevels)
	}
	if capacity < 1 || capacity > MaxNodePoolCapacity {
		return nil, errors.Errorf("node pool capacity must be in [1, %d], got %d", MaxNodePoolCapacity, capacity)
	}
	pool := &NodePool{
		numLevels: numLevels,
		nodes:     make([]node, capacity),
		levels:    make([]Range, 0, numLevels),
	}
	pool.cursor.Store(1)
	pool.levels = append(pool.levels, Range{Start: 0, End: 1})
	return pool, nil
}

// Reset clears every allocated node in parallel and leaves only the root.
func (p *NodePool) Reset(workers int) error {
	used := int(p.cursor.Load())
	err := utils.GroupWorkParallel(workers, used, nil, func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(memberNum, workNum int) {
			p.nodes[workNum].clear()
		}, nil
	})
	if err != nil {
		return err
	}
	p.cursor.Store(1)
	p.levels = append(p.levels[:0], Range{Start: 0, End: 1})
	return nil
}

// Capacity is the number of nodes the pool can hold.
func (p *NodePool) Capacity() int {
	return len(p.nodes)
}

// allocBlock reserves ChildrenPerNode consecutive nodes. It fails instead of moving the cursor
// past capacity, so a failed allocation leaves the pool untouched.
func (p *NodePool) allocBlock() (uint32, bool) {
	capacity := uint32(len(p.nodes))
	for {
		cur := p.cursor.Load()
		if cur > capacity || capacity-cur < ChildrenPerNode {
			return 0, false
		}
		if p.cursor.CompareAndSwap(cur, cur+ChildrenPerNode) {
			return cur, true
		}
	}
}

// setFlag sets the subdivision flag on node idx and reports whether this call set it.
func (p *NodePool) setFlag(idx uint32) bool {
	next := &p.nodes[idx].next
	for {
		old := next.Load()
		if old&FlagBit != 0 {
			return false
		}
		if next.CompareAndSwap(old, old|FlagBit) {
			return true
		}
	}
}

// descend walks from the root towards level along the path of the leaf coordinates pos. It
// returns the node reached and whether it is at level; a node without children stops the walk.
func (p *NodePool) descend(pos pointcloud.VoxelCoords, level int) (uint32, bool) {
	idx := uint32(0)
	for l := 0; l < level; l++ {
		child := p.nodes[idx].next.Load() & PointerMask
		if child == NoChildren {
			return idx, false
		}
		idx = child + octant(pos, l, p.numLevels)
	}
	return idx, true
}

// NumLevels is the configured number of levels; leaves live at NumLevels()-1.
func (p *NodePool) NumLevels() int {
	return p.numLevels
}

// Resolution is the number of leaf voxels along each axis.
func (p *NodePool) Resolution() int {
	return 1 << (p.numLevels - 1)
}

// BuiltLevels is the number of levels holding nodes.
func (p *NodePool) BuiltLevels() int {
	return len(p.levels)
}

// Level returns the node index range of level l, empty when it was never built.
func (p *NodePool) Level(l int) Range {
	if l < 0 || l >= len(p.levels) {
		return Range{}
	}
	return p.levels[l]
}

// NodeCount is the number of allocated nodes.
func (p *NodePool) NodeCount() int {
	return int(p.cursor.Load())
}

// Node returns a snapshot of node i.
func (p *NodePool) Node(i uint32) NodeRecord {
	return p.nodes[i].record()
}

// Root returns a snapshot of the root node, which holds the scene wide aggregate.
func (p *NodePool) Root() NodeRecord {
	return p.Node(0)
}
