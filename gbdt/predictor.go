package gbdt

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/edgeml/edgeboost/core/parallel"
	"github.com/edgeml/edgeboost/pkg/errors"
)

// Node is one record of a tree's flat node array. Nodes are appended in
// creation order, so the root is always index 0 and child indices are always
// greater than the node's own index: the slice itself encodes the binary
// tree with no pointer structure.
//
// The JSON field names follow the ensemble exchange format.
type Node struct {
	IsLeaf bool `json:"is_leaf"`

	// Value is the leaf's raw output, one entry per output dimension.
	// Zero-filled for internal nodes.
	Value []float64 `json:"value"`

	// Count is the number of training samples that reached the node.
	Count int `json:"count"`

	// Split fields, meaningful for internal nodes only. Threshold is the
	// real-valued equivalent of BinThreshold, usable when raw numeric input
	// is supplied instead of pre-binned input.
	FeatureIdx   int     `json:"feature_idx"`
	BinThreshold uint8   `json:"bin_threshold"`
	Threshold    float64 `json:"threshold"`

	// Left and Right are indices into the same node array.
	Left  int `json:"left"`
	Right int `json:"right"`

	// Gain is the split quality score, kept for introspection.
	Gain float64 `json:"gain"`

	// Depth is the distance from the root.
	Depth int `json:"depth"`
}

// TreePredictor is the compiled, read-only evaluator of a fitted tree.
// Traversal is an iterative walk over the flat node array: no recursion and
// no per-sample allocation, so many samples can be evaluated concurrently.
//
// The output width is fixed at construction and bound to the value; it is
// never process-wide state.
type TreePredictor struct {
	nodes         []Node
	predictionDim int

	// hasNumericalThresholds is false when the tree was trained on binned
	// data with no threshold reconstruction; such a tree can only serve
	// pre-binned queries.
	hasNumericalThresholds bool
}

// NewTreePredictor wraps a finished node array. predictionDim must match the
// width of every leaf's Value vector.
func NewTreePredictor(nodes []Node, predictionDim int, hasNumericalThresholds bool) (*TreePredictor, error) {
	if len(nodes) == 0 {
		return nil, errors.NewValueError("NewTreePredictor", "empty node array")
	}
	if predictionDim < 1 {
		return nil, errors.NewValidationError("prediction_dim", "must be >= 1", predictionDim)
	}
	for i := range nodes {
		if nodes[i].IsLeaf && len(nodes[i].Value) != predictionDim {
			return nil, errors.NewDimensionError("NewTreePredictor", predictionDim, len(nodes[i].Value), 1)
		}
		if !nodes[i].IsLeaf && (nodes[i].Left <= i || nodes[i].Right <= i) {
			return nil, errors.NewValueError("NewTreePredictor",
				"child indices must be greater than the parent's own index")
		}
	}
	return &TreePredictor{
		nodes:                  nodes,
		predictionDim:          predictionDim,
		hasNumericalThresholds: hasNumericalThresholds,
	}, nil
}

// Nodes returns the underlying node array. Callers must not modify it.
func (t *TreePredictor) Nodes() []Node {
	return t.nodes
}

// PredictionDim returns the width of the output vector per sample.
func (t *TreePredictor) PredictionDim() int {
	return t.predictionDim
}

// HasNumericalThresholds reports whether the tree can serve raw numeric
// queries in addition to pre-binned ones.
func (t *TreePredictor) HasNumericalThresholds() bool {
	return t.hasNumericalThresholds
}

// NumLeafNodes returns the number of leaves.
func (t *TreePredictor) NumLeafNodes() int {
	n := 0
	for i := range t.nodes {
		if t.nodes[i].IsLeaf {
			n++
		}
	}
	return n
}

// MaxDepth returns the maximum depth among all nodes.
func (t *TreePredictor) MaxDepth() int {
	depth := 0
	for i := range t.nodes {
		if t.nodes[i].Depth > depth {
			depth = t.nodes[i].Depth
		}
	}
	return depth
}

// leafForBinnedRow walks the tree for one pre-binned sample.
func (t *TreePredictor) leafForBinnedRow(row []uint8) *Node {
	node := &t.nodes[0]
	for !node.IsLeaf {
		if row[node.FeatureIdx] <= node.BinThreshold {
			node = &t.nodes[node.Left]
		} else {
			node = &t.nodes[node.Right]
		}
	}
	return node
}

// leafForNumericRow walks the tree for one raw numeric sample.
func (t *TreePredictor) leafForNumericRow(row []float64) *Node {
	node := &t.nodes[0]
	for !node.IsLeaf {
		if row[node.FeatureIdx] <= node.Threshold {
			node = &t.nodes[node.Left]
		} else {
			node = &t.nodes[node.Right]
		}
	}
	return node
}

// PredictBinned evaluates the tree for every row of a binned matrix and
// returns an (n_samples, prediction_dim) matrix of raw outputs. Samples are
// evaluated concurrently over contiguous chunks, each writing its own
// disjoint output rows.
func (t *TreePredictor) PredictBinned(binned *BinnedMatrix) (*mat.Dense, error) {
	if binned == nil {
		return nil, errors.NewDTypeError("TreePredictor.PredictBinned", "uint8 bin codes", "nil")
	}
	rows, _ := binned.Dims()
	out := mat.NewDense(rows, t.predictionDim, nil)
	parallel.ParallelizeWithThreshold(rows, predictParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			leaf := t.leafForBinnedRow(binned.Row(i))
			out.SetRow(i, leaf.Value)
		}
	})
	return out, nil
}

// Predict evaluates the tree for raw numeric samples. It fails when the
// tree's thresholds were never reconstructed as numeric; pre-binned data
// must go through PredictBinned instead (the two input modes are mutually
// exclusive).
func (t *TreePredictor) Predict(X mat.Matrix) (*mat.Dense, error) {
	if !t.hasNumericalThresholds {
		return nil, errors.NewValueError("TreePredictor.Predict",
			"this predictor has no numerical thresholds and can only predict pre-binned data")
	}
	rows, cols := X.Dims()
	out := mat.NewDense(rows, t.predictionDim, nil)
	parallel.ParallelizeWithThreshold(rows, predictParallelThreshold, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			leaf := t.leafForNumericRow(row)
			out.SetRow(i, leaf.Value)
		}
	})
	return out, nil
}

// predictParallelThreshold is the batch size below which sample fan-out is
// not worth the goroutine overhead.
const predictParallelThreshold = 512

// String renders the flat node array one line per node, for debugging and
// model inspection.
func (t *TreePredictor) String() string {
	var sb strings.Builder
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.IsLeaf {
			fmt.Fprintf(&sb, "#%d leaf depth=%d count=%d value=%v\n",
				i, n.Depth, n.Count, n.Value)
			continue
		}
		fmt.Fprintf(&sb, "#%d split depth=%d count=%d feature=%d bin<=%d (x<=%g) gain=%.6g left=#%d right=#%d\n",
			i, n.Depth, n.Count, n.FeatureIdx, n.BinThreshold, n.Threshold, n.Gain, n.Left, n.Right)
	}
	return sb.String()
}

// scaleLeaves multiplies every leaf value by factor. The boosting loop uses
// it to apply learning-rate shrinkage to a freshly grown tree before its
// outputs are accumulated.
func (t *TreePredictor) scaleLeaves(factor float64) {
	for i := range t.nodes {
		if !t.nodes[i].IsLeaf {
			continue
		}
		for k := range t.nodes[i].Value {
			t.nodes[i].Value[k] *= factor
		}
	}
}
