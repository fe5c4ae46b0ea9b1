package utils

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// DefaultParallelFactor is the parallelism used when a caller asks for zero or fewer workers.
// Above 32 procs only a quarter of them are used; beyond that point the extra goroutines tend to
// cost more in scheduling than they win on the small passes we run.
func DefaultParallelFactor() int {
	factor := runtime.GOMAXPROCS(0)
	if factor <= 0 {
		return 1
	}
	if quarterProcs := factor / 4; quarterProcs > 8 {
		return quarterProcs
	}
	return factor
}

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated number of groups.
	BeforeParallelGroupWorkFunc func(numGroups int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// GroupWorkParallel splits [0, totalSize) into at most parallelism contiguous groups and runs each
// group on its own goroutine. It returns only after every group has finished, so all writes made
// by the work are visible to the caller afterwards. Panics inside a group are captured and
// returned as an error once all groups are done; there is no early exit.
func GroupWorkParallel(parallelism, totalSize int, before BeforeParallelGroupWorkFunc, groupWork GroupWorkFunc) error {
	if parallelism <= 0 {
		parallelism = DefaultParallelFactor()
	}
	numGroups := parallelism
	if totalSize < numGroups {
		numGroups = totalSize
	}
	if before != nil {
		before(numGroups)
	}
	if numGroups == 0 {
		return nil
	}
	groupSize := totalSize / numGroups
	extra := totalSize % numGroups

	var (
		wait     sync.WaitGroup
		panicsMu sync.Mutex
		panics   error
	)
	wait.Add(numGroups)
	from := 0
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		thisGroupSize := groupSize
		if groupNum < extra {
			thisGroupSize++
		}
		groupNum, groupFrom, groupTo := groupNum, from, from+thisGroupSize
		from = groupTo
		go func() {
			defer wait.Done()
			defer func() {
				if thePanic := recover(); thePanic != nil {
					panicsMu.Lock()
					panics = multierr.Combine(panics, fmt.Errorf("panic in parallel group %d: %v", groupNum, thePanic))
					panicsMu.Unlock()
				}
			}()
			memberWork, groupWorkDone := groupWork(groupNum, groupTo-groupFrom, groupFrom, groupTo)
			if memberWork != nil {
				for workNum := groupFrom; workNum < groupTo; workNum++ {
					memberWork(workNum-groupFrom, workNum)
				}
			}
			if groupWorkDone != nil {
				groupWorkDone()
			}
		}()
	}
	wait.Wait()
	return panics
}

// SimpleFunc is for RunInParallel.
type SimpleFunc func(ctx context.Context) error

// RunInParallel runs all functions in parallel, return is elapsed time and an error.
// The first failure cancels the context handed to the remaining functions.
func RunInParallel(ctx context.Context, fs []SimpleFunc) (time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	var bigError error
	var bigErrorMutex sync.Mutex
	storeError := func(err error) {
		bigErrorMutex.Lock()
		defer bigErrorMutex.Unlock()
		if bigError == nil || !errors.Is(err, context.Canceled) {
			bigError = multierr.Combine(bigError, err)
		}
	}

	helper := func(f SimpleFunc) {
		defer func() {
			if thePanic := recover(); thePanic != nil {
				storeError(fmt.Errorf("got panic running something in parallel: %v", thePanic))
				cancel()
			}
			wg.Done()
		}()
		if err := f(ctx); err != nil {
			storeError(err)
			cancel()
		}
	}

	for _, f := range fs {
		wg.Add(1)
		go helper(f)
	}

	wg.Wait()
	return time.Since(start), bigError
}
