package octree

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// poolMagic starts every serialized node pool.
const poolMagic = "SVO1"

// MarshalBinary serializes the pool in little endian:
//
//	"SVO1" | numLevels | nodeCount | numLevels x (start, end) | nodeCount x (next, color) | nodeCount x count
//
// Levels that were never built are written as (0, 0).
func (p *NodePool) MarshalBinary() ([]byte, error) {
	nodeCount := p.NodeCount()
	size := len(poolMagic) + 8 + p.numLevels*8 + nodeCount*(NodeRecordSize+4)
	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.WriteString(poolMagic)

	le := binary.LittleEndian
	var word [4]byte
	writeUint32 := func(v uint32) {
		le.PutUint32(word[:], v)
		buf.Write(word[:])
	}
	writeUint32(uint32(p.numLevels))
	writeUint32(uint32(nodeCount))
	for l := 0; l < p.numLevels; l++ {
		r := p.Level(l)
		writeUint32(r.Start)
		writeUint32(r.End)
	}
	for i := 0; i < nodeCount; i++ {
		rec, err := p.Node(uint32(i)).MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(rec)
	}
	for i := 0; i < nodeCount; i++ {
		writeUint32(p.nodes[i].count.Load())
	}
	return buf.Bytes(), nil
}

// UnmarshalOctree reads a pool written by MarshalBinary. The returned pool has exactly as much
// capacity as it has nodes.
func UnmarshalOctree(data []byte) (*NodePool, error) {
	le := binary.LittleEndian
	if len(data) < len(poolMagic)+8 || string(data[:len(poolMagic)]) != poolMagic {
		return nil, errors.New("not a serialized node pool")
	}
	data = data[len(poolMagic):]
	numLevels := int(le.Uint32(data))
	nodeCount := int(le.Uint32(data[4:]))
	data = data[8:]

	if nodeCount < 1 || nodeCount > MaxNodePoolCapacity {
		return nil, errors.Errorf("invalid node count %d", nodeCount)
	}
	pool, err := NewNodePool(nodeCount, numLevels)
	if err != nil {
		return nil, err
	}
	if want := numLevels*8 + nodeCount*(NodeRecordSize+4); len(data) != want {
		return nil, errors.Errorf("expected %d bytes of levels and nodes, got %d", want, len(data))
	}

	pool.levels = pool.levels[:0]
	for l := 0; l < numLevels; l++ {
		r := Range{Start: le.Uint32(data), End: le.Uint32(data[4:])}
		data = data[8:]
		if r.Len() == 0 {
			continue
		}
		if r.End > uint32(nodeCount) {
			return nil, errors.Errorf("level %d range [%d, %d) is past the %d nodes", l, r.Start, r.End, nodeCount)
		}
		if len(pool.levels) != l {
			return nil, errors.Errorf("level %d is built but level %d is not", l, len(pool.levels))
		}
		pool.levels = append(pool.levels, r)
	}
	if len(pool.levels) == 0 || pool.levels[0] != (Range{Start: 0, End: 1}) {
		return nil, errors.New("level 0 must hold only the root")
	}

	counts := data[nodeCount*NodeRecordSize:]
	for i := 0; i < nodeCount; i++ {
		rec := data[i*NodeRecordSize:]
		next := le.Uint32(rec)
		if child := next & PointerMask; child != NoChildren && int(child)+ChildrenPerNode > nodeCount {
			return nil, errors.Errorf("node %d points past the end of the pool", i)
		}
		n := &pool.nodes[i]
		n.next.Store(next)
		n.color = le.Uint32(rec[4:])
		n.count.Store(le.Uint32(counts[i*4:]))
	}
	pool.cursor.Store(uint32(nodeCount))
	return pool, nil
}
