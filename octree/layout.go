package octree

import (
	"encoding/binary"
	"image/color"

	"go.viam.com/vct/pointcloud"
	"go.viam.com/vct/voxel"
)

const (
	// ChildrenPerNode is the branching factor of the tree.
	ChildrenPerNode = 8
	// FlagBit marks a node for subdivision in its next field.
	FlagBit = uint32(1) << 31
	// PointerMask extracts the child block index from a next field.
	PointerMask = FlagBit - 1
	// NoChildren is the next value of a node without a child block. Index 0 is the root, which is
	// never anyone's child, so it is free to act as the sentinel.
	NoChildren = uint32(0)

	// NodeRecordSize is the packed size of a node record in bytes.
	NodeRecordSize = 8

	// MaxLevels is the deepest tree a packed fragment position can address.
	MaxLevels = voxel.MaxLevels
	// MaxNodePoolCapacity keeps child indices clear of the flag bit.
	MaxNodePoolCapacity = 1 << 30
)

// Range is a half open range of node indices.
type Range struct {
	Start uint32
	End   uint32
}

// Len is the number of nodes in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains reports whether node i is in the range.
func (r Range) Contains(i uint32) bool {
	return i >= r.Start && i < r.End
}

// Command returns the dispatch command with one invocation per node of the range.
func (r Range) Command() voxel.DispatchCommand {
	return voxel.NewDispatchCommand(r.Start, uint32(r.Len()))
}

// NodeRecord is a snapshot of one node.
type NodeRecord struct {
	Next  uint32
	Color color.NRGBA
	// Count is the number of fragments below the node.
	Count uint32
}

// Child is the index of the first node of the child block, NoChildren if there is none.
func (rec NodeRecord) Child() uint32 {
	return rec.Next & PointerMask
}

// HasChildren reports whether the node was subdivided.
func (rec NodeRecord) HasChildren() bool {
	return rec.Child() != NoChildren
}

// Flagged reports whether the node carries the subdivision flag.
func (rec NodeRecord) Flagged() bool {
	return rec.Next&FlagBit != 0
}

// Type classifies the node.
func (rec NodeRecord) Type() NodeType {
	switch {
	case rec.HasChildren():
		return InternalNode
	case rec.Count > 0:
		return LeafNodeFilled
	default:
		return LeafNodeEmpty
	}
}

// MarshalBinary packs the node into its 8 byte record: next then the RGBA8 color.
func (rec NodeRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, NodeRecordSize)
	buf = binary.LittleEndian.AppendUint32(buf, rec.Next)
	buf = binary.LittleEndian.AppendUint32(buf, voxel.PackColor(rec.Color))
	return buf, nil
}

// octant selects which child of a node at level contains the leaf coordinates pos.
func octant(pos pointcloud.VoxelCoords, level, numLevels int) uint32 {
	shift := uint(numLevels - 2 - level)
	x := uint32(pos.I>>shift) & 1
	y := uint32(pos.J>>shift) & 1
	z := uint32(pos.K>>shift) & 1
	return x | y<<1 | z<<2
}

// childCoords is the position of child i of the node at parent, one level down.
func childCoords(parent pointcloud.VoxelCoords, i uint32) pointcloud.VoxelCoords {
	return pointcloud.VoxelCoords{
		I: parent.I<<1 | int64(i&1),
		J: parent.J<<1 | int64((i>>1)&1),
		K: parent.K<<1 | int64((i>>2)&1),
	}
}
