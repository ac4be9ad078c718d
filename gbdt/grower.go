package gbdt

import (
	"container/heap"

	"github.com/edgeml/edgeboost/pkg/errors"
)

// growerConfig bundles the tree-level hyperparameters.
type growerConfig struct {
	MaxLeafNodes     int
	MaxDepth         int // 0 means unlimited
	MinSamplesLeaf   int
	L2Regularization float64
	MinGainToSplit   float64
}

// treeGrower grows one tree leaf-wise: among all nodes that still admit a
// valid split, the one with the highest gain is expanded next, until the
// leaf budget is exhausted or nothing is left to split. This is why the leaf
// count, not the depth, is the primary stopping control.
//
// Nodes are appended to a flat arena in creation order; child references are
// array indices, so the root is index 0 and no node is ever relocated.
type treeGrower struct {
	binned   *BinnedMatrix
	builder  *histogramBuilder
	splitter *splitter
	cfg      growerConfig

	// mapper, when present, supplies the real-valued equivalent of each bin
	// cut so the finished tree can also serve raw numeric queries.
	mapper *BinMapper

	// The tree's leaf values occupy slot classIdx of a predictionDim-wide
	// output vector; the other slots stay zero. Multiclass boosting grows
	// one tree per class per round, each bound to its own slot.
	predictionDim int
	classIdx      int

	gradients []float64
	hessians  []float64

	nodes []Node
}

// growerNode is the grower-side state of one tree node while it is still a
// split candidate. It never outlives the growth of its tree.
type growerNode struct {
	nodeIdx int
	indices []int
	depth   int

	sumGradients float64
	sumHessians  float64

	hist  histogramSet
	split splitInfo

	// insertion orders equal-gain candidates, keeping growth deterministic.
	insertion int
}

func newTreeGrower(binned *BinnedMatrix, binCounts []int, gradients, hessians []float64,
	cfg growerConfig, mapper *BinMapper, predictionDim, classIdx int,
) (*treeGrower, error) {
	rows, _ := binned.Dims()
	if len(gradients) != rows || len(hessians) != rows {
		return nil, errors.NewDimensionError("newTreeGrower", rows, len(gradients), 0)
	}
	if cfg.MaxLeafNodes < 2 {
		return nil, errors.NewValidationError("max_leaf_nodes", "must be >= 2", cfg.MaxLeafNodes)
	}
	if classIdx < 0 || classIdx >= predictionDim {
		return nil, errors.NewValidationError("class_idx", "must be within prediction dim", classIdx)
	}
	return &treeGrower{
		binned:        binned,
		builder:       newHistogramBuilder(binned, binCounts),
		splitter:      newSplitter(cfg.L2Regularization, cfg.MinSamplesLeaf, cfg.MinGainToSplit),
		cfg:           cfg,
		mapper:        mapper,
		predictionDim: predictionDim,
		classIdx:      classIdx,
		gradients:     gradients,
		hessians:      hessians,
	}, nil
}

// grow builds the tree and compiles it into a TreePredictor.
func (g *treeGrower) grow() (*TreePredictor, error) {
	rows, _ := g.binned.Dims()
	rootIndices := make([]int, rows)
	for i := range rootIndices {
		rootIndices[i] = i
	}

	pq := &candidateHeap{}
	heap.Init(pq)
	insertions := 0

	root := g.addNode(rootIndices, 0)
	if cand, ok := g.evaluate(root, rootIndices, 0, nil); ok {
		cand.insertion = insertions
		insertions++
		heap.Push(pq, cand)
	}

	leaves := 1
	for pq.Len() > 0 && leaves < g.cfg.MaxLeafNodes {
		cand := heap.Pop(pq).(*growerNode)
		left, right := g.applySplit(cand)

		for _, child := range []*growerNode{left, right} {
			if child == nil {
				continue
			}
			child.insertion = insertions
			insertions++
			heap.Push(pq, child)
		}
		// One leaf became an internal node with two leaf children.
		leaves++
	}

	return NewTreePredictor(g.nodes, g.predictionDim, g.mapper != nil)
}

// addNode appends a leaf record for the given partition and returns its
// index. Every node starts life as a leaf with its closed-form optimal
// value; applySplit later rewrites the record if the node is expanded.
func (g *treeGrower) addNode(indices []int, depth int) int {
	sumGrad, sumHess := 0.0, 0.0
	for _, idx := range indices {
		sumGrad += g.gradients[idx]
		sumHess += g.hessians[idx]
	}

	value := make([]float64, g.predictionDim)
	value[g.classIdx] = leafValue(sumGrad, sumHess, g.cfg.L2Regularization)

	g.nodes = append(g.nodes, Node{
		IsLeaf: true,
		Value:  value,
		Count:  len(indices),
		Depth:  depth,
	})
	return len(g.nodes) - 1
}

// evaluate computes the node's histograms (or accepts precomputed ones) and
// its best split. It returns false when the node is a forced leaf: depth
// budget reached, partition too small, or no candidate with positive gain.
func (g *treeGrower) evaluate(nodeIdx int, indices []int, depth int, hist histogramSet) (*growerNode, bool) {
	if g.cfg.MaxDepth > 0 && depth >= g.cfg.MaxDepth {
		return nil, false
	}
	if len(indices) < 2*g.splitter.minSamplesLeaf {
		return nil, false
	}

	if hist == nil {
		hist = g.builder.build(indices, g.gradients, g.hessians)
	}

	sumGrad, sumHess := 0.0, 0.0
	for _, idx := range indices {
		sumGrad += g.gradients[idx]
		sumHess += g.hessians[idx]
	}

	split, ok := g.splitter.findBestSplit(hist, sumGrad, sumHess, len(indices))
	if !ok {
		return nil, false
	}

	return &growerNode{
		nodeIdx:      nodeIdx,
		indices:      indices,
		depth:        depth,
		sumGradients: sumGrad,
		sumHessians:  sumHess,
		hist:         hist,
		split:        split,
	}, true
}

// applySplit rewrites the candidate's record as an internal node, partitions
// its samples, appends the two child leaves, and evaluates them. The smaller
// child's histograms are accumulated from its own rows; the larger child's
// are derived by subtracting them from the parent's.
func (g *treeGrower) applySplit(cand *growerNode) (left, right *growerNode) {
	split := cand.split

	node := &g.nodes[cand.nodeIdx]
	node.IsLeaf = false
	for k := range node.Value {
		node.Value[k] = 0
	}
	node.FeatureIdx = split.FeatureIdx
	node.BinThreshold = split.BinThreshold
	if g.mapper != nil {
		node.Threshold = g.mapper.NumericalThreshold(split.FeatureIdx, split.BinThreshold)
	}
	node.Gain = split.Gain

	leftIndices := make([]int, 0, split.LeftCount)
	rightIndices := make([]int, 0, split.RightCount)
	for _, idx := range cand.indices {
		if g.binned.At(idx, split.FeatureIdx) <= split.BinThreshold {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}

	leftIdx := g.addNode(leftIndices, cand.depth+1)
	rightIdx := g.addNode(rightIndices, cand.depth+1)
	node = &g.nodes[cand.nodeIdx] // addNode may have grown the arena
	node.Left = leftIdx
	node.Right = rightIdx

	// Scan only the smaller child; subtract to get its sibling.
	var leftHist, rightHist histogramSet
	if len(leftIndices) <= len(rightIndices) {
		leftHist = g.builder.build(leftIndices, g.gradients, g.hessians)
		rightHist = subtractHistogramSet(cand.hist, leftHist)
	} else {
		rightHist = g.builder.build(rightIndices, g.gradients, g.hessians)
		leftHist = subtractHistogramSet(cand.hist, rightHist)
	}
	cand.hist = nil // histograms are transient, drop the parent's now

	leftCand, leftOK := g.evaluate(leftIdx, leftIndices, cand.depth+1, leftHist)
	rightCand, rightOK := g.evaluate(rightIdx, rightIndices, cand.depth+1, rightHist)
	if !leftOK {
		leftCand = nil
	}
	if !rightOK {
		rightCand = nil
	}
	return leftCand, rightCand
}

// candidateHeap orders splittable nodes by gain, highest first; equal gains
// fall back to insertion order so growth is reproducible.
type candidateHeap []*growerNode

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].split.Gain != h[j].split.Gain {
		return h[i].split.Gain > h[j].split.Gain
	}
	return h[i].insertion < h[j].insertion
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(*growerNode))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
