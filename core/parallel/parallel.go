// Package parallel provides chunked goroutine fan-out helpers used by the
// histogram builder, the split scan, and batch prediction. Work is divided
// into contiguous ranges so each worker touches a disjoint slice of the
// shared read-only input and writes to disjoint output rows, with no locks.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize divides items into contiguous ranges, one per available CPU
// core, and runs fn(start, end) for each range in its own goroutine. It
// returns when all ranges have been processed.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeChunked(items, func(_, start, end int) {
		fn(start, end)
	})
}

// ParallelizeChunked is like Parallelize but also hands each range its
// worker index, so callers can accumulate into per-worker local state and
// merge afterwards.
func ParallelizeChunked(items int, fn func(worker, start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := NumWorkers(items)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(worker, s, e int) {
			defer wg.Done()
			fn(worker, s, e)
		}(w, start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially over the whole range when
// items is at or below threshold, and fans out otherwise. Small inputs are
// not worth the goroutine overhead.
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// NumWorkers returns the number of workers Parallelize would use for the
// given item count: the CPU count, capped by items.
func NumWorkers(items int) int {
	n := runtime.NumCPU()
	if n > items {
		n = items
	}
	if n < 1 {
		n = 1
	}
	return n
}
