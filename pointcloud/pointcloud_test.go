package pointcloud

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/vct/logging"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()

	p0 := NewVector(0, 0, 0)
	d0 := NewBasicData()

	test.That(t, pc.Set(p0, d0), test.ShouldBeNil)
	test.That(t, pc.MetaData().HasColor, test.ShouldBeFalse)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d0)

	_, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeFalse)

	p1 := NewVector(1, 0, 1)
	d1 := NewColoredData(color.NRGBA{17, 0, 0, 255})
	test.That(t, pc.Set(p1, d1), test.ShouldBeNil)

	d, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p2 := NewVector(-1, -2, 1)
	d2 := NewColoredData(color.NRGBA{1, 2, 3, 255})
	test.That(t, pc.Set(p2, d2), test.ShouldBeNil)

	count := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		count++
		return true
	})
	test.That(t, count, test.ShouldEqual, 3)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	// overwrite keeps the size
	test.That(t, pc.Set(p1, d0), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	meta := pc.MetaData()
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.Min(), test.ShouldResemble, NewVector(-1, -2, 0))
	test.That(t, meta.Max(), test.ShouldResemble, NewVector(1, 0, 1))

	pBad := NewVector(minPreciseFloat64-1e6, 0, 0)
	err := pc.Set(pBad, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "x component")

	pBad = NewVector(0, 0, maxPreciseFloat64*2)
	err = pc.Set(pBad, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "z component")
}

func TestIterateBatches(t *testing.T) {
	pc := New()
	for i := 0; i < 10; i++ {
		test.That(t, pc.Set(NewVector(float64(i), 0, 0), NewBasicData()), test.ShouldBeNil)
	}

	seen := map[float64]int{}
	for batch := 0; batch < 3; batch++ {
		pc.Iterate(3, batch, func(p r3.Vector, d Data) bool {
			seen[p.X]++
			return true
		})
	}
	test.That(t, len(seen), test.ShouldEqual, 10)
	for _, n := range seen {
		test.That(t, n, test.ShouldEqual, 1)
	}

	stopped := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		stopped++
		return stopped < 4
	})
	test.That(t, stopped, test.ShouldEqual, 4)
}

func TestVoxelCoords(t *testing.T) {
	origin := NewVector(-1, -1, -1)
	c := GetVoxelCoordinates(NewVector(0.1, -0.9, 0.99), origin, 0.5)
	test.That(t, c, test.ShouldResemble, VoxelCoords{I: 2, J: 0, K: 3})
	test.That(t, c.IsEqual(VoxelCoords{2, 0, 3}), test.ShouldBeTrue)
	test.That(t, c.InGrid(4), test.ShouldBeTrue)
	test.That(t, c.InGrid(3), test.ShouldBeFalse)
	test.That(t, VoxelCoords{-1, 0, 0}.InGrid(4), test.ShouldBeFalse)

	center := GetVoxelCenter(c, origin, 0.5)
	test.That(t, center, test.ShouldResemble, NewVector(0.25, -0.75, 0.75))
}

func newColoredCloud(t *testing.T) PointCloud {
	t.Helper()
	pc := New()
	test.That(t, pc.Set(NewVector(-1000, 2000, 0), NewColoredData(color.NRGBA{255, 1, 2, 255})), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(582, 12, 0), NewColoredData(color.NRGBA{0, 128, 64, 255})), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(7, 6, 1), NewColoredData(color.NRGBA{10, 20, 30, 255})), test.ShouldBeNil)
	return pc
}

func TestPCD(t *testing.T) {
	for _, tc := range []struct {
		name string
		typ  PCDType
	}{
		{"ascii", PCDAscii},
		{"binary", PCDBinary},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cloud := newColoredCloud(t)
			var buf bytes.Buffer
			test.That(t, ToPCD(cloud, &buf, tc.typ), test.ShouldBeNil)
			if tc.typ == PCDAscii {
				test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z rgb\n")
				test.That(t, buf.String(), test.ShouldContainSubstring, "DATA ascii\n")
			}

			read, err := ReadPCD(&buf)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, read.Size(), test.ShouldEqual, cloud.Size())
			test.That(t, read.MetaData().HasColor, test.ShouldBeTrue)

			var got []PointAndData
			read.Iterate(0, 0, func(p r3.Vector, d Data) bool {
				got = append(got, PointAndData{p, d})
				return true
			})
			test.That(t, got[1].P.X, test.ShouldAlmostEqual, 582, 0.01)
			test.That(t, got[1].P.Y, test.ShouldAlmostEqual, 12, 0.01)
			test.That(t, got[1].D.Color(), test.ShouldResemble, color.NRGBA{0, 128, 64, 255})
			test.That(t, got[0].D.Color(), test.ShouldResemble, color.NRGBA{255, 1, 2, 255})
		})
	}

	t.Run("uncolored", func(t *testing.T) {
		cloud := New()
		test.That(t, cloud.Set(NewVector(1, 2, 3), NewBasicData()), test.ShouldBeNil)
		var buf bytes.Buffer
		test.That(t, ToPCD(cloud, &buf, PCDAscii), test.ShouldBeNil)
		test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z\n")
		read, err := ReadPCD(&buf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, read.MetaData().HasColor, test.ShouldBeFalse)
	})

	t.Run("compressed", func(t *testing.T) {
		var buf bytes.Buffer
		test.That(t, ToPCD(New(), &buf, PCDCompressed), test.ShouldNotBeNil)
	})
}

func TestReadPCDBadHeaders(t *testing.T) {
	const good = "VERSION .7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n" +
		"WIDTH 1\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 1\nDATA ascii\n1 2 3\n"

	_, err := ReadPCD(strings.NewReader(good))
	test.That(t, err, test.ShouldBeNil)

	for _, tc := range []struct {
		from, to, msg string
	}{
		{"VERSION .7", "VERSION .6", "unsupported pcd version"},
		{"FIELDS x y z", "FIELDS x y z normal", "unsupported pcd fields"},
		{"SIZE 4 4 4", "SIZE 4 4", "SIZE"},
		{"POINTS 1", "POINTS 2", "does not match"},
		{"VIEWPOINT 0 0 0 1 0 0 0", "VIEWPOINT 0 0 0", "VIEWPOINT"},
		{"DATA ascii", "DATA binary_compressed", "compressed"},
	} {
		t.Run(tc.msg, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(strings.Replace(good, tc.from, tc.to, 1)))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
		})
	}
}

func TestNewFromFile(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	fn := filepath.Join(dir, "cloud.pcd")
	f, err := os.Create(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ToPCD(newColoredCloud(t), f, PCDBinary), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)

	cloud, err := NewFromFile(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 3)

	_, err = NewFromFile(filepath.Join(dir, "cloud.xyz"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not know how to read")
}

func TestLAS(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	t.Run("colored", func(t *testing.T) {
		in := newColoredCloud(t)
		test.That(t, in.Set(NewVector(3, 3, 3), NewBasicData()), test.ShouldBeNil)
		fn := filepath.Join(dir, "colored.las")
		test.That(t, WriteToLASFile(in, fn), test.ShouldBeNil)

		out, err := NewFromFile(fn, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Size(), test.ShouldEqual, in.Size())
		test.That(t, out.MetaData().HasColor, test.ShouldBeTrue)

		var got []PointAndData
		out.Iterate(0, 0, func(p r3.Vector, d Data) bool {
			got = append(got, PointAndData{P: p, D: d})
			return true
		})
		i := 0
		in.Iterate(0, 0, func(p r3.Vector, d Data) bool {
			test.That(t, got[i].P.X, test.ShouldAlmostEqual, p.X, 1e-3)
			test.That(t, got[i].P.Y, test.ShouldAlmostEqual, p.Y, 1e-3)
			test.That(t, got[i].P.Z, test.ShouldAlmostEqual, p.Z, 1e-3)
			test.That(t, got[i].D.HasColor(), test.ShouldBeTrue)
			if d.HasColor() {
				test.That(t, got[i].D.Color(), test.ShouldResemble, d.Color())
			} else {
				test.That(t, got[i].D.Color(), test.ShouldResemble, lasDefaultColor)
			}
			i++
			return true
		})
	})

	t.Run("uncolored", func(t *testing.T) {
		in := New()
		test.That(t, in.Set(NewVector(1, 2, 3), NewBasicData()), test.ShouldBeNil)
		test.That(t, in.Set(NewVector(10, 20, 30), nil), test.ShouldBeNil)
		fn := filepath.Join(dir, "plain.las")
		test.That(t, WriteToLASFile(in, fn), test.ShouldBeNil)

		out, err := NewFromLASFile(fn, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Size(), test.ShouldEqual, 2)
		test.That(t, out.MetaData().HasColor, test.ShouldBeFalse)
		test.That(t, out.MetaData().Max().X, test.ShouldAlmostEqual, 10, 1e-3)
	})

	t.Run("empty cloud", func(t *testing.T) {
		err := WriteToLASFile(New(), filepath.Join(dir, "empty.las"))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFromLASFile(filepath.Join(dir, "missing.las"), logger)
		test.That(t, err, test.ShouldNotBeNil)
	})
}
