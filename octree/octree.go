// Package octree builds a sparse voxel octree from voxel fragments and mipmaps it level by level.
//
// A build is a chain of data-parallel passes over index ranges (flag, subdivide, write leaves,
// mipmap), each one joined before the next starts. Nodes live in a fixed capacity NodePool and
// are addressed by index; children of a node are a block of 8 consecutive nodes.
package octree

import (
	"go.viam.com/vct/pointcloud"
)

// Each node in the octree is either an internal node which links to a block of children, a leaf
// that no fragment reached, or a leaf holding the combined color of the fragments inside it.
const (
	InternalNode = NodeType(iota)
	LeafNodeEmpty
	LeafNodeFilled
)

// NodeType represents the possible types of nodes in an octree.
type NodeType uint8

// Octree is the read-only view of a built node pool handed to consumers such as cone tracing.
type Octree interface {
	// NumLevels is the configured number of levels; leaves live at NumLevels()-1.
	NumLevels() int
	// Resolution is the number of leaf voxels along each axis.
	Resolution() int
	// Level returns the node index range of a level, empty when the level was never built.
	Level(l int) Range
	// NodeCount is the number of allocated nodes.
	NodeCount() int
	Node(i uint32) NodeRecord
	Root() NodeRecord
	// Lookup finds the node at the given level containing the leaf coordinates pos.
	Lookup(level int, pos pointcloud.VoxelCoords) (NodeRecord, bool)
	// Walk visits nodes depth first from the root; fn returning false skips the subtree.
	Walk(fn func(pos Position, idx uint32, rec NodeRecord) bool)
	Marshaler
}

// Marshaler will convert an octree into a serialized array of bytes.
type Marshaler interface {
	MarshalBinary() ([]byte, error)
}

// Position names a node by its level and its coordinates in that level's grid.
type Position struct {
	Level  int
	Coords pointcloud.VoxelCoords
}
