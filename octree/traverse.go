package octree

import (
	"go.viam.com/vct/pointcloud"
)

// Lookup finds the node at level whose extent contains the leaf coordinates pos. It reports false
// when pos is outside the grid or the tree stops above level along that path.
func (p *NodePool) Lookup(level int, pos pointcloud.VoxelCoords) (NodeRecord, bool) {
	if level < 0 || level >= p.numLevels || !pos.InGrid(int64(p.Resolution())) {
		return NodeRecord{}, false
	}
	idx, ok := p.descend(pos, level)
	if !ok {
		return NodeRecord{}, false
	}
	return p.Node(idx), true
}

// Walk visits nodes depth first from the root, children in octant order, until fn returns false.
// The subtree of a node is skipped when fn returns false for it.
func (p *NodePool) Walk(fn func(pos Position, idx uint32, rec NodeRecord) bool) {
	p.walk(Position{}, 0, fn)
}

func (p *NodePool) walk(pos Position, idx uint32, fn func(pos Position, idx uint32, rec NodeRecord) bool) {
	rec := p.Node(idx)
	if !fn(pos, idx, rec) || !rec.HasChildren() {
		return
	}
	for i := uint32(0); i < ChildrenPerNode; i++ {
		child := Position{Level: pos.Level + 1, Coords: childCoords(pos.Coords, i)}
		p.walk(child, rec.Child()+i, fn)
	}
}
