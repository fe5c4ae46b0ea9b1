// Package voxel turns point clouds into voxel fragments, the input of octree construction.
package voxel

import (
	"encoding/binary"
	"image/color"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/vct/pointcloud"
)

const (
	// FragmentSize is the packed size of a fragment record in bytes.
	FragmentSize = 8
	// PositionBits is the number of bits per axis in a packed fragment position.
	PositionBits = 10
	// MaxGridResolution is the largest grid a packed position can address.
	MaxGridResolution = 1 << PositionBits

	// MaxFragmentCapacity bounds the fragment list so indices fit a dispatch command.
	MaxFragmentCapacity = 1 << 30

	positionMask = MaxGridResolution - 1
)

// Fragment is one surface sample: a voxel coordinate and the color that landed there.
type Fragment struct {
	Pos   pointcloud.VoxelCoords
	Color color.NRGBA
}

// PackPosition packs voxel coordinates as x | y<<10 | z<<20.
func PackPosition(pos pointcloud.VoxelCoords) (uint32, error) {
	if !pos.InGrid(MaxGridResolution) {
		return 0, errors.Errorf("voxel %v does not fit in %d bits per axis", pos, PositionBits)
	}
	return uint32(pos.I) | uint32(pos.J)<<PositionBits | uint32(pos.K)<<(2*PositionBits), nil
}

// UnpackPosition is the inverse of PackPosition.
func UnpackPosition(packed uint32) pointcloud.VoxelCoords {
	return pointcloud.VoxelCoords{
		I: int64(packed & positionMask),
		J: int64((packed >> PositionBits) & positionMask),
		K: int64((packed >> (2 * PositionBits)) & positionMask),
	}
}

// PackColor packs a color as R | G<<8 | B<<16 | A<<24.
func PackColor(c color.NRGBA) uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

// UnpackColor is the inverse of PackColor.
func UnpackColor(packed uint32) color.NRGBA {
	return color.NRGBA{
		R: uint8(packed),
		G: uint8(packed >> 8),
		B: uint8(packed >> 16),
		A: uint8(packed >> 24),
	}
}

// MarshalBinary packs the fragment into its 8 byte record.
func (f Fragment) MarshalBinary() ([]byte, error) {
	pos, err := PackPosition(f.Pos)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, FragmentSize)
	buf = binary.LittleEndian.AppendUint32(buf, pos)
	buf = binary.LittleEndian.AppendUint32(buf, PackColor(f.Color))
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (f *Fragment) UnmarshalBinary(data []byte) error {
	if len(data) != FragmentSize {
		return errors.Errorf("fragment record must be %d bytes, got %d", FragmentSize, len(data))
	}
	f.Pos = UnpackPosition(binary.LittleEndian.Uint32(data))
	f.Color = UnpackColor(binary.LittleEndian.Uint32(data[4:]))
	return nil
}

// FragmentList is a fixed capacity fragment buffer that any number of goroutines may Append to.
// Once every producer is done, Finalize returns the command that sizes the passes reading it.
type FragmentList struct {
	fragments []Fragment
	cursor    atomic.Uint64
	dropped   atomic.Uint64
}

// NewFragmentList allocates a list holding at most capacity fragments.
func NewFragmentList(capacity int) (*FragmentList, error) {
	if capacity <= 0 || capacity > MaxFragmentCapacity {
		return nil, errors.Errorf("fragment capacity must be in [1, %d], got %d", MaxFragmentCapacity, capacity)
	}
	return &FragmentList{fragments: make([]Fragment, capacity)}, nil
}

// Append claims the next slot and stores f there. When the list is full the fragment is dropped,
// counted and false is returned.
func (fl *FragmentList) Append(f Fragment) bool {
	idx := fl.cursor.Inc() - 1
	if idx >= uint64(len(fl.fragments)) {
		fl.dropped.Inc()
		return false
	}
	fl.fragments[idx] = f
	return true
}

// Finalize returns the dispatch command covering every stored fragment. Call it only after all
// Appends have returned.
func (fl *FragmentList) Finalize() DispatchCommand {
	return NewDispatchCommand(0, uint32(fl.Len()))
}

// Len is the number of fragments stored.
func (fl *FragmentList) Len() int {
	n := fl.cursor.Load()
	if n > uint64(len(fl.fragments)) {
		return len(fl.fragments)
	}
	return int(n)
}

// Capacity is the maximum number of fragments the list holds.
func (fl *FragmentList) Capacity() int {
	return len(fl.fragments)
}

// Dropped is the number of fragments rejected because the list was full.
func (fl *FragmentList) Dropped() uint64 {
	return fl.dropped.Load()
}

// At returns the i-th fragment.
func (fl *FragmentList) At(i uint32) Fragment {
	return fl.fragments[i]
}

// Reset empties the list for reuse.
func (fl *FragmentList) Reset() {
	fl.cursor.Store(0)
	fl.dropped.Store(0)
}

// MarshalBinary packs the stored fragments back to back.
func (fl *FragmentList) MarshalBinary() ([]byte, error) {
	n := fl.Len()
	buf := make([]byte, 0, n*FragmentSize)
	for i := 0; i < n; i++ {
		rec, err := fl.fragments[i].MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "fragment %d", i)
		}
		buf = append(buf, rec...)
	}
	return buf, nil
}

// UnmarshalFragmentList reads packed fragment records into a new list of the given capacity.
func UnmarshalFragmentList(data []byte, capacity int) (*FragmentList, error) {
	if len(data)%FragmentSize != 0 {
		return nil, errors.Errorf("fragment data length %d is not a multiple of %d", len(data), FragmentSize)
	}
	fl, err := NewFragmentList(capacity)
	if err != nil {
		return nil, err
	}
	for off := 0; off < len(data); off += FragmentSize {
		var f Fragment
		if err := f.UnmarshalBinary(data[off : off+FragmentSize]); err != nil {
			return nil, err
		}
		fl.Append(f)
	}
	return fl, nil
}
