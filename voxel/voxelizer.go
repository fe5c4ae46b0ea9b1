package voxel

import (
	"context"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/vct/logging"
	"go.viam.com/vct/pointcloud"
	"go.viam.com/vct/utils"
)

// MaxLevels is the deepest octree whose leaves a packed fragment position can address.
const MaxLevels = PositionBits + 1

var defaultColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Voxelizer maps point cloud positions onto a cubic grid of 2^(numLevels-1) voxels per axis.
type Voxelizer struct {
	cfg        Config
	resolution int
	logger     logging.Logger
}

// NewVoxelizer returns a Voxelizer for octrees with numLevels levels.
func NewVoxelizer(cfg Config, numLevels int, logger logging.Logger) (*Voxelizer, error) {
	if err := cfg.Validate("voxelization"); err != nil {
		return nil, err
	}
	if numLevels < 1 || numLevels > MaxLevels {
		return nil, errors.Errorf("num_levels must be in [1, %d], got %d", MaxLevels, numLevels)
	}
	return &Voxelizer{
		cfg:        cfg,
		resolution: 1 << (numLevels - 1),
		logger:     logger,
	}, nil
}

// Resolution is the number of voxels along each axis.
func (v *Voxelizer) Resolution() int {
	return v.resolution
}

// Bounds returns the region of space mapped onto the grid for the given cloud.
func (v *Voxelizer) Bounds(cloud pointcloud.PointCloud) (r3.Vector, r3.Vector) {
	if v.cfg.HasSceneBounds() {
		return r3.Vector{X: v.cfg.SceneMin[0], Y: v.cfg.SceneMin[1], Z: v.cfg.SceneMin[2]},
			r3.Vector{X: v.cfg.SceneMax[0], Y: v.cfg.SceneMax[1], Z: v.cfg.SceneMax[2]}
	}
	meta := cloud.MetaData()
	return meta.Min(), meta.Max()
}

// GridTransform returns the matrix taking positions inside [minPt, maxPt] to grid coordinates.
// The grid is a cube whose side is the largest extent of the bounds so voxels stay cubic.
func (v *Voxelizer) GridTransform(minPt, maxPt r3.Vector) mgl64.Mat4 {
	side := math.Max(maxPt.X-minPt.X, math.Max(maxPt.Y-minPt.Y, maxPt.Z-minPt.Z))
	if side <= 0 {
		side = 1
	}
	scale := float64(v.resolution) / side
	return mgl64.Scale3D(scale, scale, scale).Mul4(mgl64.Translate3D(-minPt.X, -minPt.Y, -minPt.Z))
}

// outsideScene marks a position outside the scene bounds. It is never in the grid.
var outsideScene = pointcloud.VoxelCoords{I: -1, J: -1, K: -1}

// VoxelCoords maps a position through the grid transform. Positions inside the bounds always
// land in the grid. Positions outside them never do, even along an axis thinner than the cubic
// grid, so they are counted as malformed later.
func (v *Voxelizer) VoxelCoords(transform mgl64.Mat4, p, minPt, maxPt r3.Vector) pointcloud.VoxelCoords {
	inside := p.X >= minPt.X && p.X <= maxPt.X &&
		p.Y >= minPt.Y && p.Y <= maxPt.Y &&
		p.Z >= minPt.Z && p.Z <= maxPt.Z
	if !inside {
		return outsideScene
	}
	g := transform.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	last := int64(v.resolution - 1)
	return pointcloud.VoxelCoords{
		I: clampCoord(int64(math.Floor(g[0])), last),
		J: clampCoord(int64(math.Floor(g[1])), last),
		K: clampCoord(int64(math.Floor(g[2])), last),
	}
}

func clampCoord(c, last int64) int64 {
	if c < 0 {
		return 0
	}
	if c > last {
		return last
	}
	return c
}

// Voxelize appends one fragment per point of cloud to list and returns the command sizing the
// octree passes. Points are split into batches handled in parallel. A full list drops fragments
// and counts them; it is not an error.
func (v *Voxelizer) Voxelize(ctx context.Context, cloud pointcloud.PointCloud, list *FragmentList) (DispatchCommand, error) {
	minPt, maxPt := v.Bounds(cloud)
	transform := v.GridTransform(minPt, maxPt)

	numBatches := v.cfg.Workers
	if numBatches <= 0 {
		numBatches = utils.DefaultParallelFactor()
	}

	droppedBefore := list.Dropped()
	g, gctx := errgroup.WithContext(ctx)
	for batch := 0; batch < numBatches; batch++ {
		batch := batch
		g.Go(func() error {
			cloud.Iterate(numBatches, batch, func(p r3.Vector, d pointcloud.Data) bool {
				if gctx.Err() != nil {
					return false
				}
				c := defaultColor
				if d != nil && d.HasColor() {
					c = d.Color()
				}
				list.Append(Fragment{Pos: v.VoxelCoords(transform, p, minPt, maxPt), Color: c})
				return true
			})
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return DispatchCommand{}, errors.Wrap(err, "voxelizing point cloud")
	}

	cmd := list.Finalize()
	if dropped := list.Dropped() - droppedBefore; dropped > 0 {
		v.logger.Warnw("fragment list capacity exceeded", "dropped", dropped, "capacity", list.Capacity())
	}
	v.logger.Debugw("voxelized point cloud", "points", cloud.Size(), "fragments", cmd.Count, "resolution", v.resolution)
	return cmd, nil
}
