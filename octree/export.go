package octree

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/vct/pointcloud"
)

// ToPointCloud returns one point per occupied node of level, placed at the node's center and
// colored with its aggregate. Centers are computed in leaf voxel units and then mapped through
// gridToWorld; pass mgl64.Ident4() to keep grid units.
func ToPointCloud(tree Octree, level int, gridToWorld mgl64.Mat4) (pointcloud.PointCloud, error) {
	if level < 0 || level >= tree.NumLevels() {
		return nil, errors.Errorf("level %d is outside [0, %d)", level, tree.NumLevels())
	}
	voxelSize := float64(int(1) << (tree.NumLevels() - 1 - level))
	cloud := pointcloud.NewWithPrealloc(tree.Level(level).Len())

	var setErr error
	tree.Walk(func(pos Position, idx uint32, rec NodeRecord) bool {
		if setErr != nil || rec.Count == 0 {
			return false
		}
		if pos.Level < level {
			return true
		}
		center := pointcloud.GetVoxelCenter(pos.Coords, r3.Vector{}, voxelSize)
		world := gridToWorld.Mul4x1(mgl64.Vec4{center.X, center.Y, center.Z, 1})
		setErr = cloud.Set(pointcloud.NewVector(world[0], world[1], world[2]), pointcloud.NewColoredData(rec.Color))
		return false
	})
	if setErr != nil {
		return nil, setErr
	}
	return cloud, nil
}
