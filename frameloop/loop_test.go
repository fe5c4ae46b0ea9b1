package frameloop

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/vct/logging"
	"go.viam.com/vct/octree"
	"go.viam.com/vct/pointcloud"
	"go.viam.com/vct/voxel"
)

var (
	testVoxelConfig  = voxel.Config{FragmentCapacity: 64, SceneMin: [3]float64{0, 0, 0}, SceneMax: [3]float64{8, 8, 8}}
	testOctreeConfig = octree.Config{NumLevels: 4, NodePoolCapacity: 1 << 10, Workers: 2}
)

// coloredScene returns a source whose scene is a single point colored by the frame number.
func coloredScene(frames *atomic.Int64) SceneSource {
	return SceneSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		n := frames.Inc()
		cloud := pointcloud.New()
		c := color.NRGBA{R: uint8(n), A: 255}
		if err := cloud.Set(pointcloud.NewVector(float64(n%8), 1, 1), pointcloud.NewColoredData(c)); err != nil {
			return nil, err
		}
		return cloud, nil
	})
}

func TestConfig(t *testing.T) {
	test.That(t, Config{}.Validate("frame_loop"), test.ShouldBeNil)
	test.That(t, Config{}.Interval(), test.ShouldEqual, time.Second/defaultFrameRateHz)
	test.That(t, Config{FrameRateHz: 4}.Interval(), test.ShouldEqual, 250*time.Millisecond)

	err := Config{FrameRateHz: -1}.Validate("frame_loop")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "frame_rate_hz")
	test.That(t, Config{StatsWindow: -1}.Validate("frame_loop"), test.ShouldNotBeNil)
}

func TestNewLoopErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	source := coloredScene(atomic.NewInt64(0))

	_, err := NewLoop(Config{}, testVoxelConfig, octree.Config{NumLevels: 40, NodePoolCapacity: 1}, source, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLoop(Config{}, voxel.Config{}, testOctreeConfig, source, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLoop(Config{FrameRateHz: -3}, testVoxelConfig, testOctreeConfig, source, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRunFrame(t *testing.T) {
	logger := logging.NewTestLogger(t)
	frames := atomic.NewInt64(0)
	loop, err := NewLoop(Config{StatsWindow: 2}, testVoxelConfig, testOctreeConfig, coloredScene(frames), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, loop.View(func(uint64, octree.Octree, octree.Stats) {}), test.ShouldBeFalse)
	_, err = loop.Timing()
	test.That(t, err, test.ShouldNotBeNil)

	var trees []octree.Octree
	for i := 1; i <= 3; i++ {
		stats, err := loop.RunFrame(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, stats.FragmentsWritten, test.ShouldEqual, uint64(1))

		viewed := loop.View(func(frame uint64, tree octree.Octree, viewStats octree.Stats) {
			test.That(t, frame, test.ShouldEqual, uint64(i))
			test.That(t, tree.Root().Color, test.ShouldResemble, color.NRGBA{R: uint8(i), A: 255})
			test.That(t, viewStats, test.ShouldResemble, stats)
			trees = append(trees, tree)
		})
		test.That(t, viewed, test.ShouldBeTrue)
	}
	// pools alternate between frames
	test.That(t, trees[0], test.ShouldEqual, trees[2])
	test.That(t, trees[0], test.ShouldNotEqual, trees[1])

	timing, err := loop.Timing()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, timing.Frames, test.ShouldEqual, 3)
	test.That(t, timing.MaxMs, test.ShouldBeGreaterThanOrEqualTo, timing.P50Ms)
	test.That(t, timing.MeanMs, test.ShouldBeGreaterThan, 0.0)
}

func TestRunFrameSourceError(t *testing.T) {
	logger := logging.NewTestLogger(t)
	source := SceneSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		return nil, errors.New("camera unplugged")
	})
	loop, err := NewLoop(Config{}, testVoxelConfig, testOctreeConfig, source, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = loop.RunFrame(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera unplugged")
	test.That(t, loop.View(func(uint64, octree.Octree, octree.Stats) {}), test.ShouldBeFalse)
}

func TestStartStop(t *testing.T) {
	logger := logging.NewTestLogger(t)
	frames := atomic.NewInt64(0)
	loop, err := NewLoop(Config{FrameRateHz: 200}, testVoxelConfig, testOctreeConfig, coloredScene(frames), logger)
	test.That(t, err, test.ShouldBeNil)

	loop.Start()
	loop.Start()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, frames.Load(), test.ShouldBeGreaterThanOrEqualTo, int64(3))
	})
	loop.Stop()
	loop.Stop()

	built := frames.Load()
	time.Sleep(50 * time.Millisecond)
	test.That(t, frames.Load(), test.ShouldEqual, built)
	test.That(t, loop.View(func(frame uint64, tree octree.Octree, stats octree.Stats) {
		test.That(t, frame, test.ShouldBeGreaterThanOrEqualTo, uint64(3))
		test.That(t, frame, test.ShouldBeLessThanOrEqualTo, uint64(built))
	}), test.ShouldBeTrue)
}
