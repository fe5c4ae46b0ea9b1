package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.viam.com/test"
	gutils "go.viam.com/utils"
)

func TestGroupWorkParallel(t *testing.T) {
	t.Run("covers every index exactly once", func(t *testing.T) {
		for _, parallelism := range []int{1, 3, 8, 64} {
			const total = 1001
			hits := make([]atomic.Int32, total)
			var groups int
			err := GroupWorkParallel(parallelism, total, func(numGroups int) {
				groups = numGroups
			}, func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
				test.That(t, to-from, test.ShouldEqual, groupSize)
				return func(memberNum, workNum int) {
					hits[workNum].Inc()
				}, nil
			})
			test.That(t, err, test.ShouldBeNil)
			test.That(t, groups, test.ShouldBeLessThanOrEqualTo, parallelism)
			for i := range hits {
				test.That(t, hits[i].Load(), test.ShouldEqual, 1)
			}
		}
	})

	t.Run("group done runs after members", func(t *testing.T) {
		var mu sync.Mutex
		sums := map[int]int{}
		err := GroupWorkParallel(4, 100, nil, func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
			local := 0
			return func(memberNum, workNum int) {
					local += workNum
				}, func() {
					mu.Lock()
					sums[groupNum] = local
					mu.Unlock()
				}
		})
		test.That(t, err, test.ShouldBeNil)
		total := 0
		for _, s := range sums {
			total += s
		}
		test.That(t, total, test.ShouldEqual, 99*100/2)
	})

	t.Run("empty work", func(t *testing.T) {
		called := false
		err := GroupWorkParallel(4, 0, func(numGroups int) {
			test.That(t, numGroups, test.ShouldEqual, 0)
		}, func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
			called = true
			return nil, nil
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, called, test.ShouldBeFalse)
	})

	t.Run("panics are returned after the join", func(t *testing.T) {
		var finished atomic.Int32
		err := GroupWorkParallel(4, 4, nil, func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
			if groupNum == 2 {
				panic("bad group")
			}
			return nil, func() { finished.Inc() }
		})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "bad group")
		test.That(t, finished.Load(), test.ShouldEqual, 3)
	})
}

func TestRunInParallel(t *testing.T) {
	wait100ms := func(ctx context.Context) error {
		gutils.SelectContextOrWait(ctx, 100*time.Millisecond)
		return ctx.Err()
	}

	elapsed, err := RunInParallel(context.Background(), []SimpleFunc{wait100ms, wait100ms})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, elapsed, test.ShouldBeLessThan, 500*time.Millisecond)
	test.That(t, elapsed, test.ShouldBeGreaterThan, 90*time.Millisecond)

	errFunc := func(ctx context.Context) error {
		return errors.New("bad")
	}

	_, err = RunInParallel(context.Background(), []SimpleFunc{wait100ms, wait100ms, errFunc})
	test.That(t, err, test.ShouldNotBeNil)

	panicFunc := func(ctx context.Context) error {
		panic(1)
	}

	_, err = RunInParallel(context.Background(), []SimpleFunc{panicFunc})
	test.That(t, err, test.ShouldNotBeNil)
}
