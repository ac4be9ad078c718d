package gbdt

import (
	"math"

	"github.com/edgeml/edgeboost/core/parallel"
)

// splitInfo describes the best split found for a node: which feature, which
// bin cut-point, and the statistics of the two sides.
type splitInfo struct {
	FeatureIdx   int
	BinThreshold uint8
	Gain         float64
	LeftCount    int
	RightCount   int
	LeftGradSum  float64
	LeftHessSum  float64
	RightGradSum float64
	RightHessSum float64
}

// splitter scans a node's histograms for the (feature, bin) cut with the
// highest regularized gain.
type splitter struct {
	l2Regularization float64
	minSamplesLeaf   int
	minGainToSplit   float64

	// Feature counts below this size are scanned on the calling goroutine.
	parallelThreshold int
}

func newSplitter(l2Regularization float64, minSamplesLeaf int, minGainToSplit float64) *splitter {
	if minSamplesLeaf < 1 {
		minSamplesLeaf = 1
	}
	return &splitter{
		l2Regularization:  l2Regularization,
		minSamplesLeaf:    minSamplesLeaf,
		minGainToSplit:    minGainToSplit,
		parallelThreshold: 8,
	}
}

// findBestSplit scans every feature and candidate bin of the node's
// histograms and returns the best valid split. The second return value is
// false when no candidate satisfies the minimum-leaf-size constraint with
// positive gain, in which case the node must become a leaf.
//
// Ties on gain resolve to the lowest (feature index, bin) pair: each feature
// is scanned in ascending bin order with a strict improvement test, and the
// cross-feature merge applies the same ordering, so the result does not
// depend on scheduling.
func (s *splitter) findBestSplit(hists histogramSet, sumGradients, sumHessians float64, count int) (splitInfo, bool) {
	// Nodes too small to yield two valid leaves are never split.
	if count < 2*s.minSamplesLeaf {
		return splitInfo{}, false
	}

	cols := len(hists)
	perFeature := make([]splitInfo, cols)
	found := make([]bool, cols)
	parallel.ParallelizeWithThreshold(cols, s.parallelThreshold, func(start, end int) {
		for j := start; j < end; j++ {
			perFeature[j], found[j] = s.scanFeature(j, hists[j], sumGradients, sumHessians, count)
		}
	})

	var best splitInfo
	ok := false
	for j := 0; j < cols; j++ {
		if !found[j] {
			continue
		}
		if !ok || perFeature[j].Gain > best.Gain {
			best = perFeature[j]
			ok = true
		}
	}
	return best, ok
}

// scanFeature tries every bin of one feature as a cut-point, accumulating
// left-side sums in ascending bin order and deriving the right side from the
// node totals.
func (s *splitter) scanFeature(featureIdx int, hist histogram, sumGradients, sumHessians float64, count int) (splitInfo, bool) {
	var best splitInfo
	ok := false

	leftGrad := 0.0
	leftHess := 0.0
	leftCount := 0

	// The last bin has no upper edge, so it can never be a cut-point.
	for bin := 0; bin < len(hist)-1; bin++ {
		leftGrad += hist[bin].SumGradients
		leftHess += hist[bin].SumHessians
		leftCount += hist[bin].Count

		rightCount := count - leftCount
		if leftCount < s.minSamplesLeaf {
			continue
		}
		if rightCount < s.minSamplesLeaf {
			break
		}

		rightGrad := sumGradients - leftGrad
		rightHess := sumHessians - leftHess

		gain := s.splitGain(leftGrad, leftHess, rightGrad, rightHess, sumGradients, sumHessians)
		if gain <= s.minGainToSplit || gain <= 0 {
			continue
		}

		// Strict improvement keeps the first (lowest-bin) candidate on ties.
		if !ok || gain > best.Gain {
			best = splitInfo{
				FeatureIdx:   featureIdx,
				BinThreshold: uint8(bin),
				Gain:         gain,
				LeftCount:    leftCount,
				RightCount:   rightCount,
				LeftGradSum:  leftGrad,
				LeftHessSum:  leftHess,
				RightGradSum: rightGrad,
				RightHessSum: rightHess,
			}
			ok = true
		}
	}
	return best, ok
}

// splitGain is the regularized loss reduction of cutting a node into the
// given left/right halves:
//
//	0.5 * (GL^2/(HL+lambda) + GR^2/(HR+lambda) - G^2/(H+lambda))
func (s *splitter) splitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	lambda := s.l2Regularization

	gain := 0.5 * (leafObjective(leftGrad, leftHess+lambda) +
		leafObjective(rightGrad, rightHess+lambda) -
		leafObjective(totalGrad, totalHess+lambda))

	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		return 0
	}
	return gain
}

func leafObjective(grad, hessPlusLambda float64) float64 {
	const minHess = 1e-16
	if hessPlusLambda < minHess {
		hessPlusLambda = minHess
	}
	return grad * grad / hessPlusLambda
}

// leafValue is the closed-form optimal output of a leaf with the given
// gradient/hessian sums under L2 regularization.
func leafValue(sumGradients, sumHessians, l2Regularization float64) float64 {
	denom := sumHessians + l2Regularization
	const minHess = 1e-16
	if denom < minHess {
		denom = minHess
	}
	return -sumGradients / denom
}
