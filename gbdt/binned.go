package gbdt

import (
	"github.com/edgeml/edgeboost/pkg/errors"
)

// MaxBinCount is the hard ceiling on bins per feature. Bin codes are stored
// as uint8, which keeps per-node histograms small enough to stay
// cache-resident during the split scan.
const MaxBinCount = 256

// BinnedMatrix is a samples-by-features matrix of uint8 bin codes produced
// by a BinMapper. Within each feature column, bin codes are non-decreasing
// in the underlying feature value, which is what makes the `<=` threshold
// split semantics meaningful.
//
// The matrix is row-major and read-only after construction; tree growth and
// binned prediction share it across goroutines without synchronization.
type BinnedMatrix struct {
	rows, cols int
	data       []uint8
}

// NewBinnedMatrix allocates a zeroed rows-by-cols binned matrix.
func NewBinnedMatrix(rows, cols int) (*BinnedMatrix, error) {
	if rows <= 0 {
		return nil, errors.NewDimensionError("NewBinnedMatrix", 1, rows, 0)
	}
	if cols <= 0 {
		return nil, errors.NewDimensionError("NewBinnedMatrix", 1, cols, 1)
	}
	return &BinnedMatrix{
		rows: rows,
		cols: cols,
		data: make([]uint8, rows*cols),
	}, nil
}

// Dims returns the number of samples and features.
func (b *BinnedMatrix) Dims() (rows, cols int) {
	return b.rows, b.cols
}

// At returns the bin code of sample i, feature j.
func (b *BinnedMatrix) At(i, j int) uint8 {
	return b.data[i*b.cols+j]
}

// Row returns sample i's bin codes as a slice into the underlying storage.
// Callers must not modify it.
func (b *BinnedMatrix) Row(i int) []uint8 {
	return b.data[i*b.cols : (i+1)*b.cols]
}

func (b *BinnedMatrix) set(i, j int, code uint8) {
	b.data[i*b.cols+j] = code
}

// TakeRows returns a new BinnedMatrix holding copies of the given rows, in
// order. Used to carve train/validation subsets out of a binned dataset.
func (b *BinnedMatrix) TakeRows(indices []int) (*BinnedMatrix, error) {
	if len(indices) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	out, err := NewBinnedMatrix(len(indices), b.cols)
	if err != nil {
		return nil, err
	}
	for i, idx := range indices {
		copy(out.data[i*b.cols:(i+1)*b.cols], b.Row(idx))
	}
	return out, nil
}
