// Package frameloop rebuilds the octree once per frame from a changing scene.
//
// Two node pools are kept: consumers read the last completed one while the next frame is built
// into the other, and the two are swapped once a build finishes.
package frameloop

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/vct/logging"
	"go.viam.com/vct/octree"
	"go.viam.com/vct/pointcloud"
	"go.viam.com/vct/utils"
	"go.viam.com/vct/voxel"
)

// SceneSource provides the scene to voxelize for each frame.
type SceneSource interface {
	Scene(ctx context.Context) (pointcloud.PointCloud, error)
}

// SceneSourceFunc adapts a function to a SceneSource.
type SceneSourceFunc func(ctx context.Context) (pointcloud.PointCloud, error)

// Scene calls f.
func (f SceneSourceFunc) Scene(ctx context.Context) (pointcloud.PointCloud, error) {
	return f(ctx)
}

// Loop voxelizes and builds one octree per frame.
type Loop struct {
	cfg       Config
	source    SceneSource
	voxelizer *voxel.Voxelizer
	builder   *octree.Builder
	fragments *voxel.FragmentList
	logger    logging.Logger

	// buildMu serializes frames; back is only touched while holding it.
	buildMu sync.Mutex
	back    *octree.NodePool

	frontMu    sync.RWMutex
	front      *octree.NodePool
	frontStats octree.Stats
	frame      uint64

	durations *durationWindow
	workers   utils.StoppableWorkers
}

// NewLoop allocates both node pools and the fragment list up front, so every allocation failure is
// reported before the first frame.
func NewLoop(
	cfg Config,
	voxelCfg voxel.Config,
	octreeCfg octree.Config,
	source SceneSource,
	logger logging.Logger,
) (*Loop, error) {
	if err := cfg.Validate("frame_loop"); err != nil {
		return nil, err
	}
	builder, err := octree.NewBuilder(octreeCfg, logger.Sublogger("builder"))
	if err != nil {
		return nil, err
	}
	voxelizer, err := voxel.NewVoxelizer(voxelCfg, octreeCfg.NumLevels, logger.Sublogger("voxelizer"))
	if err != nil {
		return nil, err
	}
	fragments, err := voxel.NewFragmentList(voxelCfg.FragmentCapacity)
	if err != nil {
		return nil, err
	}
	front, err := builder.NewPool()
	if err != nil {
		return nil, err
	}
	back, err := builder.NewPool()
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:       cfg,
		source:    source,
		voxelizer: voxelizer,
		builder:   builder,
		fragments: fragments,
		logger:    logger,
		back:      back,
		front:     front,
		durations: newDurationWindow(cfg.statsWindow()),
	}, nil
}

// RunFrame builds one frame into the back pool and publishes it.
func (l *Loop) RunFrame(ctx context.Context) (octree.Stats, error) {
	l.buildMu.Lock()
	defer l.buildMu.Unlock()

	scene, err := l.source.Scene(ctx)
	if err != nil {
		return octree.Stats{}, errors.Wrap(err, "getting scene")
	}
	l.fragments.Reset()
	cmd, err := l.voxelizer.Voxelize(ctx, scene, l.fragments)
	if err != nil {
		return octree.Stats{}, err
	}
	stats, err := l.builder.BuildInto(ctx, l.back, l.fragments, cmd)
	if err != nil {
		return octree.Stats{}, err
	}
	l.durations.add(stats.Duration)

	l.frontMu.Lock()
	l.front, l.back = l.back, l.front
	l.frontStats = stats
	l.frame++
	frame := l.frame
	l.frontMu.Unlock()

	l.logger.CDebugw(ctx, "frame built", "frame", frame, "nodes", stats.NodesAllocated, "duration", stats.Duration)
	return stats, nil
}

// View calls fn with the last completed octree and its build stats. The tree is only valid during
// the call. It returns false without calling fn when no frame has been built yet.
func (l *Loop) View(fn func(frame uint64, tree octree.Octree, stats octree.Stats)) bool {
	l.frontMu.RLock()
	defer l.frontMu.RUnlock()
	if l.frame == 0 {
		return false
	}
	fn(l.frame, l.front, l.frontStats)
	return true
}

// Timing summarizes the build durations of recent frames.
func (l *Loop) Timing() (Timing, error) {
	return l.durations.timing()
}

// Start runs frames in the background at the configured rate until Stop is called. A failed
// frame is logged and the loop moves on to the next one.
func (l *Loop) Start() {
	if l.workers != nil {
		return
	}
	interval := l.cfg.Interval()
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		for {
			if _, err := l.RunFrame(ctx); err != nil && ctx.Err() == nil {
				l.logger.Errorw("frame failed", "error", err)
			}
			if !goutils.SelectContextOrWait(ctx, interval) {
				return
			}
		}
	})
}

// Stop waits for the frame in progress, if any, and stops the loop.
func (l *Loop) Stop() {
	if l.workers == nil {
		return
	}
	l.workers.Stop()
	l.workers = nil
}
