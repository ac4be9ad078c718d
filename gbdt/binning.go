package gbdt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/edgeml/edgeboost/core/parallel"
	"github.com/edgeml/edgeboost/pkg/errors"
)

// BinMapper quantizes continuous feature columns into small-integer bin
// codes. For each feature it learns an ascending sequence of bin edges from
// the empirical distribution; a raw value maps to the index of the first
// edge it does not exceed, and values beyond every edge fall into the last
// bin. Features with fewer distinct values than the bin budget get one bin
// per distinct value.
//
// The mapping is deterministic for fixed input and MaxBins: no sampling is
// involved, edges come straight from the sorted distinct values.
type BinMapper struct {
	maxBins int

	// edges[j] holds the upper-bound thresholds for feature j, ascending.
	// Feature j has len(edges[j])+1 bins; bin k covers values <= edges[j][k]
	// (and the last bin catches everything above the final edge).
	edges  [][]float64
	fitted bool
}

// NewBinMapper creates a BinMapper with the given per-feature bin budget.
// maxBins must be in (1, 256].
func NewBinMapper(maxBins int) (*BinMapper, error) {
	if maxBins < 2 || maxBins > MaxBinCount {
		return nil, errors.NewValidationError("max_bins",
			"must be between 2 and 256", maxBins)
	}
	return &BinMapper{maxBins: maxBins}, nil
}

// Fit computes bin edges for every feature of X. Non-finite values are
// rejected.
func (m *BinMapper) Fit(X mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}

	edges := make([][]float64, cols)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValueError("BinMapper.Fit",
					"input contains non-finite values")
			}
			column[i] = v
		}
		edges[j] = m.findBinEdges(column)
	}

	m.edges = edges
	m.fitted = true
	return nil
}

// findBinEdges computes ascending bin-edge thresholds for one feature
// column. Edges sit at midpoints between adjacent distinct values so that a
// `<= edge` test separates the values on either side exactly.
func (m *BinMapper) findBinEdges(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	distinct := make([]float64, 1, len(sorted))
	distinct[0] = sorted[0]
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			distinct = append(distinct, sorted[i])
		}
	}

	// One bin per distinct value when the budget allows.
	if len(distinct) <= m.maxBins {
		edges := make([]float64, len(distinct)-1)
		for i := 0; i < len(distinct)-1; i++ {
			edges[i] = (distinct[i] + distinct[i+1]) / 2
		}
		return edges
	}

	// Otherwise place edges at evenly spaced quantiles of the sorted data,
	// again between adjacent values, deduplicating edges that collapse onto
	// the same cut-point.
	edges := make([]float64, 0, m.maxBins-1)
	for k := 1; k < m.maxBins; k++ {
		idx := len(sorted) * k / m.maxBins
		edge := sorted[idx]
		if idx > 0 {
			edge = (sorted[idx-1] + sorted[idx]) / 2
		}
		if len(edges) == 0 || edge > edges[len(edges)-1] {
			edges = append(edges, edge)
		}
	}
	return edges
}

// Transform maps raw feature values to bin codes using the fitted edges.
func (m *BinMapper) Transform(X mat.Matrix) (*BinnedMatrix, error) {
	if !m.fitted {
		return nil, errors.NewNotFittedError("BinMapper", "Transform")
	}
	rows, cols := X.Dims()
	if cols != len(m.edges) {
		return nil, errors.NewDimensionError("BinMapper.Transform", len(m.edges), cols, 1)
	}

	binned, err := NewBinnedMatrix(rows, cols)
	if err != nil {
		return nil, err
	}

	workerErrs := make([]error, parallel.NumWorkers(rows))
	parallel.ParallelizeChunked(rows, func(worker, start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < cols; j++ {
				v := X.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					workerErrs[worker] = errors.NewValueError("BinMapper.Transform",
						"input contains non-finite values")
					return
				}
				// First edge the value does not exceed; beyond all edges
				// the value lands in the last bin.
				code := sort.SearchFloat64s(m.edges[j], v)
				binned.set(i, j, uint8(code))
			}
		}
	})
	for _, err := range workerErrs {
		if err != nil {
			return nil, err
		}
	}
	return binned, nil
}

// FitTransform fits the mapper on X and returns X binned.
func (m *BinMapper) FitTransform(X mat.Matrix) (*BinnedMatrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// NumFeatures returns the number of features the mapper was fitted on.
func (m *BinMapper) NumFeatures() int {
	return len(m.edges)
}

// NumBins returns the bin count of the given feature.
func (m *BinMapper) NumBins(feature int) int {
	return len(m.edges[feature]) + 1
}

// BinCounts returns the bin count of every feature.
func (m *BinMapper) BinCounts() []int {
	counts := make([]int, len(m.edges))
	for j := range m.edges {
		counts[j] = len(m.edges[j]) + 1
	}
	return counts
}

// NumericalThreshold returns the real-valued threshold equivalent to
// splitting feature at `bin code <= bin`. Only bins below the last one have
// an upper edge, which is exactly the set of bins the splitter may cut at.
func (m *BinMapper) NumericalThreshold(feature int, bin uint8) float64 {
	return m.edges[feature][bin]
}

// BinEdges returns a deep copy of the per-feature edge table, for
// persistence.
func (m *BinMapper) BinEdges() [][]float64 {
	out := make([][]float64, len(m.edges))
	for j, e := range m.edges {
		out[j] = append([]float64(nil), e...)
	}
	return out
}

// RestoreBinMapper rebuilds a fitted BinMapper from a persisted edge table.
func RestoreBinMapper(maxBins int, edges [][]float64) (*BinMapper, error) {
	m, err := NewBinMapper(maxBins)
	if err != nil {
		return nil, err
	}
	for j, e := range edges {
		if len(e)+1 > maxBins {
			return nil, errors.NewValidationError("bin_edges",
				"edge count exceeds max_bins", j)
		}
		if !sort.Float64sAreSorted(e) {
			return nil, errors.NewValueError("RestoreBinMapper",
				"bin edges must be ascending")
		}
	}
	m.edges = make([][]float64, len(edges))
	for j, e := range edges {
		m.edges[j] = append([]float64(nil), e...)
	}
	m.fitted = true
	return m, nil
}
