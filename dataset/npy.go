// Package dataset loads and stores numeric data in the NumPy .npy format,
// the interchange format used to move feature matrices and predictions
// between Go and Python tooling.
package dataset

import (
	"io"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/edgeml/edgeboost/pkg/errors"
)

// ReadMatrix reads a 2-D float array from r.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading npy header")
	}

	var m mat.Dense
	if err := npy.Read(&m); err != nil {
		return nil, errors.Wrap(err, "reading npy data")
	}
	return &m, nil
}

// ReadMatrixFile reads a 2-D float array from a .npy file.
func ReadMatrixFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return ReadMatrix(f)
}

// ReadVectorFile reads a .npy file holding a vector, accepting both 1-D
// arrays and single-column matrices.
func ReadVectorFile(path string) ([]float64, error) {
	m, err := ReadMatrixFile(path)
	if err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	switch {
	case cols == 1:
		out := make([]float64, rows)
		for i := 0; i < rows; i++ {
			out[i] = m.At(i, 0)
		}
		return out, nil
	case rows == 1:
		out := make([]float64, cols)
		for j := 0; j < cols; j++ {
			out[j] = m.At(0, j)
		}
		return out, nil
	default:
		return nil, errors.NewDimensionError("ReadVectorFile", 1, cols, 1)
	}
}

// WriteMatrix writes m to w in the .npy format.
func WriteMatrix(w io.Writer, m mat.Matrix) error {
	if err := npyio.Write(w, m); err != nil {
		return errors.Wrap(err, "writing npy data")
	}
	return nil
}

// WriteMatrixFile writes m to a .npy file.
func WriteMatrixFile(path string, m mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	if err := WriteMatrix(f, m); err != nil {
		return err
	}
	return errors.Wrap(f.Close(), "closing npy file")
}
