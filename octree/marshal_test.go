package octree

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"
)

func TestMarshalRoundTrip(t *testing.T) {
	frags := randomFragments(3, 200, 8, randomColor)
	pool, _ := buildTree(t, Config{NumLevels: 4, NodePoolCapacity: 1 << 12}, frags)

	data, err := pool.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data[:4]), test.ShouldEqual, "SVO1")
	test.That(t, binary.LittleEndian.Uint32(data[4:]), test.ShouldEqual, uint32(4))
	test.That(t, binary.LittleEndian.Uint32(data[8:]), test.ShouldEqual, uint32(pool.NodeCount()))
	test.That(t, len(data), test.ShouldEqual, 12+4*8+pool.NodeCount()*(NodeRecordSize+4))

	// the first record is the root
	rootRec, err := pool.Root().MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, data[12+4*8:12+4*8+NodeRecordSize], test.ShouldResemble, rootRec)

	back, err := UnmarshalOctree(data)
	test.That(t, err, test.ShouldBeNil)
	validateOctree(t, back)
	test.That(t, back.NumLevels(), test.ShouldEqual, 4)
	test.That(t, back.NodeCount(), test.ShouldEqual, pool.NodeCount())
	for l := 0; l < 4; l++ {
		test.That(t, back.Level(l), test.ShouldResemble, pool.Level(l))
	}
	test.That(t, cmp.Diff(snapshot(pool), snapshot(back)), test.ShouldBeEmpty)

	again, err := back.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, data)
}

func TestMarshalPartialTree(t *testing.T) {
	pool, _ := buildTree(t, Config{NumLevels: 5, NodePoolCapacity: 10}, nil)
	data, err := pool.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)

	back, err := UnmarshalOctree(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.BuiltLevels(), test.ShouldEqual, 1)
	test.That(t, back.Level(3).Len(), test.ShouldEqual, 0)
}

func TestUnmarshalErrors(t *testing.T) {
	frags := randomFragments(5, 20, 4, randomColor)
	pool, _ := buildTree(t, Config{NumLevels: 3, NodePoolCapacity: 100}, frags)
	data, err := pool.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)

	_, err = UnmarshalOctree(data[:3])
	test.That(t, err, test.ShouldNotBeNil)

	bad := append([]byte("SVO2"), data[4:]...)
	_, err = UnmarshalOctree(bad)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = UnmarshalOctree(data[:len(data)-1])
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected")

	badPointer := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badPointer[12+3*8:], uint32(pool.NodeCount()))
	_, err = UnmarshalOctree(badPointer)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "points past")

	badLevels := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badLevels[4:], 0)
	_, err = UnmarshalOctree(badLevels)
	test.That(t, err, test.ShouldNotBeNil)
}
