package voxel

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// DispatchCommandSize is the packed size of a DispatchCommand in bytes.
const DispatchCommandSize = 16

// DispatchCommand is an indirect launch record in the DrawArraysIndirect layout. A counting step
// fills it in and the pass that consumes it receives it by value, so its contents are fixed
// before that pass starts.
type DispatchCommand struct {
	Count         uint32
	InstanceCount uint32
	First         uint32
	BaseInstance  uint32
}

// NewDispatchCommand returns a command covering count invocations starting at first.
func NewDispatchCommand(first, count uint32) DispatchCommand {
	return DispatchCommand{Count: count, InstanceCount: 1, First: first}
}

// End is one past the last index the command covers.
func (cmd DispatchCommand) End() uint32 {
	return cmd.First + cmd.Count
}

// MarshalBinary packs the command as four little endian uint32s.
func (cmd DispatchCommand) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, DispatchCommandSize)
	buf = binary.LittleEndian.AppendUint32(buf, cmd.Count)
	buf = binary.LittleEndian.AppendUint32(buf, cmd.InstanceCount)
	buf = binary.LittleEndian.AppendUint32(buf, cmd.First)
	buf = binary.LittleEndian.AppendUint32(buf, cmd.BaseInstance)
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (cmd *DispatchCommand) UnmarshalBinary(data []byte) error {
	if len(data) != DispatchCommandSize {
		return errors.Errorf("dispatch command must be %d bytes, got %d", DispatchCommandSize, len(data))
	}
	cmd.Count = binary.LittleEndian.Uint32(data[0:])
	cmd.InstanceCount = binary.LittleEndian.Uint32(data[4:])
	cmd.First = binary.LittleEndian.Uint32(data[8:])
	cmd.BaseInstance = binary.LittleEndian.Uint32(data[12:])
	return nil
}
