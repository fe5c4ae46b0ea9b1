package octree

import (
	"time"
)

// Stats are the counters of one build. Capacity and input problems never fail a build; they show
// up here instead.
type Stats struct {
	// Fragments is the number of fragments the build was dispatched over.
	Fragments uint64
	// FragmentsWritten is the number of fragments that reached a leaf.
	FragmentsWritten uint64
	// FragmentsDropped is the number of fragments the fragment list rejected for lack of space.
	FragmentsDropped uint64
	// MalformedFragments is the number of fragments outside the voxel grid.
	MalformedFragments uint64
	// TruncatedFragments is the number of fragments whose path ended above the leaf level.
	TruncatedFragments uint64
	// AllocationFailures is the number of flagged nodes that could not get children.
	AllocationFailures uint64

	NodesAllocated int
	LevelsBuilt    int
	Duration       time.Duration
}

// CapacityExceeded is the number of capacity problems of any kind seen during the build.
func (s Stats) CapacityExceeded() uint64 {
	return s.FragmentsDropped + s.TruncatedFragments + s.AllocationFailures
}

// Truncated reports whether the tree is missing nodes it should have had.
func (s Stats) Truncated() bool {
	return s.AllocationFailures > 0
}

func (pl *Pipeline) stats(duration time.Duration) Stats {
	return Stats{
		Fragments:          uint64(pl.fragCmd.Count),
		FragmentsWritten:   pl.counters.written.Load(),
		FragmentsDropped:   pl.fragments.Dropped(),
		MalformedFragments: pl.counters.malformed.Load(),
		TruncatedFragments: pl.counters.truncated.Load(),
		AllocationFailures: pl.counters.allocFailures.Load(),
		NodesAllocated:     pl.pool.NodeCount(),
		LevelsBuilt:        pl.pool.BuiltLevels(),
		Duration:           duration,
	}
}
