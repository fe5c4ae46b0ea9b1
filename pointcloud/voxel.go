package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// VoxelCoords stores Voxel coordinates in VoxelGrid axes.
type VoxelCoords struct {
	I, J, K int64
}

// IsEqual tests if two VoxelCoords are the same.
func (c VoxelCoords) IsEqual(c2 VoxelCoords) bool {
	return c.I == c2.I && c.J == c2.J && c.K == c2.K
}

// InGrid reports whether the coordinates lie inside a cubic grid of the given resolution.
func (c VoxelCoords) InGrid(resolution int64) bool {
	return c.I >= 0 && c.J >= 0 && c.K >= 0 && c.I < resolution && c.J < resolution && c.K < resolution
}

// GetVoxelCoordinates computes the voxel coordinates of a point in a grid whose origin is ptMin.
func GetVoxelCoordinates(pt, ptMin r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor((pt.X - ptMin.X) / voxelSize)),
		J: int64(math.Floor((pt.Y - ptMin.Y) / voxelSize)),
		K: int64(math.Floor((pt.Z - ptMin.Z) / voxelSize)),
	}
}

// GetVoxelCenter returns the point of a voxel's center.
func GetVoxelCenter(coords VoxelCoords, ptMin r3.Vector, voxelSize float64) r3.Vector {
	return r3.Vector{
		X: ptMin.X + (float64(coords.I)+0.5)*voxelSize,
		Y: ptMin.Y + (float64(coords.J)+0.5)*voxelSize,
		Z: ptMin.Z + (float64(coords.K)+0.5)*voxelSize,
	}
}
