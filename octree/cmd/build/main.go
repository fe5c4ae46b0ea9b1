// Package main builds a sparse voxel octree from point cloud files.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/vct/config"
	"go.viam.com/vct/logging"
	"go.viam.com/vct/octree"
	"go.viam.com/vct/pointcloud"
	"go.viam.com/vct/utils"
	"go.viam.com/vct/voxel"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewLogger("svo_build"))
}

// Arguments for the command.
type Arguments struct {
	Config       string   `flag:"config,required,usage=pipeline config file"`
	Output       string   `flag:"output,default=octree.svo,usage=node pool output file"`
	ExportLevel  int      `flag:"export_level,default=-1,usage=also write the nodes of this level as a point cloud"`
	ExportFormat string   `flag:"export_format,default=pcd,usage=format of the exported level: pcd or las"`
	Debug        bool     `flag:"debug,usage=log every pass"`
	Input        string   `flag:"0,required,usage=.pcd or .las file"`
	MoreInputs   []string `flag:"more,extra"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := config.Read(ctx, argsParsed.Config, logger)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Level())
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	}

	inputs := lo.Uniq(append([]string{argsParsed.Input}, argsParsed.MoreInputs...))
	cloud, err := readClouds(ctx, inputs, logger)
	if err != nil {
		return err
	}

	pool, stats, gridToWorld, err := build(ctx, cfg, cloud, logger)
	if err != nil {
		return err
	}
	logger.Infow("built octree",
		"points", cloud.Size(),
		"fragments", stats.Fragments,
		"nodes", stats.NodesAllocated,
		"levels", stats.LevelsBuilt,
		"capacity_exceeded", stats.CapacityExceeded(),
		"malformed", stats.MalformedFragments,
		"duration", stats.Duration)

	data, err := pool.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(argsParsed.Output, data, 0o600); err != nil {
		return err
	}

	if argsParsed.ExportLevel >= 0 {
		return exportLevel(pool, argsParsed.ExportLevel, argsParsed.ExportFormat, gridToWorld, argsParsed.Output, logger)
	}
	return nil
}

// readClouds reads every input in parallel and merges them into one cloud.
func readClouds(ctx context.Context, inputs []string, logger logging.Logger) (pointcloud.PointCloud, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no input files given")
	}
	clouds := make([]pointcloud.PointCloud, len(inputs))
	readers := lo.Map(inputs, func(fn string, i int) utils.SimpleFunc {
		return func(ctx context.Context) error {
			cloud, err := pointcloud.NewFromFile(fn, logger)
			if err != nil {
				return errors.Wrapf(err, "reading %q", fn)
			}
			clouds[i] = cloud
			return nil
		}
	})
	elapsed, err := utils.RunInParallel(ctx, readers)
	if err != nil {
		return nil, err
	}

	total := lo.SumBy(clouds, func(c pointcloud.PointCloud) int { return c.Size() })
	merged := pointcloud.NewWithPrealloc(total)
	for _, cloud := range clouds {
		var setErr error
		cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
			setErr = merged.Set(p, d)
			return setErr == nil
		})
		if setErr != nil {
			return nil, setErr
		}
	}
	logger.CDebugw(ctx, "read point clouds", "files", len(inputs), "points", merged.Size(), "elapsed", elapsed)
	return merged, nil
}

// build voxelizes the cloud and builds the octree. It also returns the matrix taking grid
// coordinates back to the cloud's space.
func build(
	ctx context.Context,
	cfg *config.Config,
	cloud pointcloud.PointCloud,
	logger logging.Logger,
) (*octree.NodePool, octree.Stats, mgl64.Mat4, error) {
	voxelizer, err := voxel.NewVoxelizer(cfg.Voxelization, cfg.Octree.NumLevels, logger.Sublogger("voxelizer"))
	if err != nil {
		return nil, octree.Stats{}, mgl64.Mat4{}, err
	}
	builder, err := octree.NewBuilder(cfg.Octree, logger.Sublogger("builder"))
	if err != nil {
		return nil, octree.Stats{}, mgl64.Mat4{}, err
	}
	fragments, err := voxel.NewFragmentList(cfg.Voxelization.FragmentCapacity)
	if err != nil {
		return nil, octree.Stats{}, mgl64.Mat4{}, err
	}

	cmd, err := voxelizer.Voxelize(ctx, cloud, fragments)
	if err != nil {
		return nil, octree.Stats{}, mgl64.Mat4{}, err
	}
	pool, stats, err := builder.Build(ctx, fragments, cmd)
	if err != nil {
		return nil, octree.Stats{}, mgl64.Mat4{}, err
	}
	return pool, stats, voxelizer.GridTransform(voxelizer.Bounds(cloud)).Inv(), nil
}

// exportLevel writes the nodes of one level next to output, as PCD or LAS.
func exportLevel(
	pool *octree.NodePool,
	level int,
	format string,
	gridToWorld mgl64.Mat4,
	output string,
	logger logging.Logger,
) error {
	if format != "pcd" && format != "las" {
		return errors.Errorf("unknown export format %q, expected pcd or las", format)
	}
	cloud, err := octree.ToPointCloud(pool, level, gridToWorld)
	if err != nil {
		return err
	}

	fn := fmt.Sprintf("%s.level%d.%s", output, level, format)
	if format == "las" {
		err = pointcloud.WriteToLASFile(cloud, fn)
	} else {
		err = writePCD(cloud, fn)
	}
	if err != nil {
		return err
	}
	logger.Infow("exported level", "level", level, "points", cloud.Size(), "file", fn)
	return nil
}

func writePCD(cloud pointcloud.PointCloud, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.ToPCD(cloud, f, pointcloud.PCDBinary)
}
