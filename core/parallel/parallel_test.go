package parallel

import (
	"sync/atomic"
	"testing"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	const items = 1000
	seen := make([]int32, items)

	Parallelize(items, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})

	for i, count := range seen {
		if count != 1 {
			t.Fatalf("item %d processed %d times, want exactly once", i, count)
		}
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	if called {
		t.Error("fn should not be called for zero items")
	}
}

func TestParallelizeChunkedWorkerIndicesDisjoint(t *testing.T) {
	const items = 128
	owner := make([]int32, items)

	ParallelizeChunked(items, func(worker, start, end int) {
		for i := start; i < end; i++ {
			atomic.StoreInt32(&owner[i], int32(worker+1))
		}
	})

	for i, w := range owner {
		if w == 0 {
			t.Fatalf("item %d not assigned to any worker", i)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		if start != 0 || end != 10 {
			t.Errorf("sequential path should see full range, got [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("sequential path should run fn once, ran %d times", calls)
	}
}
