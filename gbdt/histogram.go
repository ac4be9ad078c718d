package gbdt

import (
	"github.com/edgeml/edgeboost/core/parallel"
)

// binStats accumulates the gradient sum, hessian sum, and sample count of a
// single (feature, bin) bucket.
type binStats struct {
	SumGradients float64
	SumHessians  float64
	Count        int
}

// histogram holds the per-bin statistics of one feature at one node.
type histogram []binStats

// histogramSet is one histogram per feature. Histograms are transient: the
// grower builds a set per node and discards it once the node is split or
// finalized as a leaf.
type histogramSet []histogram

// histogramBuilder accumulates per-feature histograms over a node's sample
// partition. The binned matrix is shared read-only; for large partitions the
// pass fans out over sample chunks with per-worker local accumulators that
// are merged at the end, so no bucket is ever written concurrently.
type histogramBuilder struct {
	binned    *BinnedMatrix
	binCounts []int

	// Partitions below this size are accumulated on the calling goroutine.
	parallelThreshold int
}

func newHistogramBuilder(binned *BinnedMatrix, binCounts []int) *histogramBuilder {
	return &histogramBuilder{
		binned:            binned,
		binCounts:         binCounts,
		parallelThreshold: 4096,
	}
}

func (hb *histogramBuilder) newHistogramSet() histogramSet {
	_, cols := hb.binned.Dims()
	set := make(histogramSet, cols)
	for j := 0; j < cols; j++ {
		set[j] = make(histogram, hb.binCounts[j])
	}
	return set
}

// build accumulates the histograms of every feature for the given sample
// partition in a single pass over its rows. gradients and hessians are
// indexed by local row id, matching the binned matrix.
func (hb *histogramBuilder) build(indices []int, gradients, hessians []float64) histogramSet {
	if len(indices) <= hb.parallelThreshold {
		set := hb.newHistogramSet()
		hb.accumulate(set, indices, gradients, hessians)
		return set
	}

	workers := parallel.NumWorkers(len(indices))
	locals := make([]histogramSet, workers)
	parallel.ParallelizeChunked(len(indices), func(worker, start, end int) {
		local := hb.newHistogramSet()
		hb.accumulate(local, indices[start:end], gradients, hessians)
		locals[worker] = local
	})

	set := locals[0]
	for _, local := range locals[1:] {
		if local == nil {
			continue
		}
		addHistogramSet(set, local)
	}
	return set
}

func (hb *histogramBuilder) accumulate(set histogramSet, indices []int, gradients, hessians []float64) {
	_, cols := hb.binned.Dims()
	for _, idx := range indices {
		row := hb.binned.Row(idx)
		g := gradients[idx]
		h := hessians[idx]
		for j := 0; j < cols; j++ {
			stats := &set[j][row[j]]
			stats.SumGradients += g
			stats.SumHessians += h
			stats.Count++
		}
	}
}

// addHistogramSet adds src into dst bucket-wise.
func addHistogramSet(dst, src histogramSet) {
	for j := range dst {
		for k := range dst[j] {
			dst[j][k].SumGradients += src[j][k].SumGradients
			dst[j][k].SumHessians += src[j][k].SumHessians
			dst[j][k].Count += src[j][k].Count
		}
	}
}

// subtractHistogramSet computes parent minus sibling into a fresh set. The
// grower scans only the smaller child of a split and derives the larger one
// this way, which halves the accumulation cost of each level.
func subtractHistogramSet(parent, sibling histogramSet) histogramSet {
	out := make(histogramSet, len(parent))
	for j := range parent {
		out[j] = make(histogram, len(parent[j]))
		for k := range parent[j] {
			out[j][k] = binStats{
				SumGradients: parent[j][k].SumGradients - sibling[j][k].SumGradients,
				SumHessians:  parent[j][k].SumHessians - sibling[j][k].SumHessians,
				Count:        parent[j][k].Count - sibling[j][k].Count,
			}
		}
	}
	return out
}
