package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/edgeml/edgeboost/pkg/errors"
)

// Accuracy computes the fraction of exactly matching labels.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// LogLoss computes the mean negative log-likelihood of true class labels
// under a predicted probability matrix. yTrue holds class indices; proba is
// (n_samples, n_classes) with rows summing to one. Probabilities are clipped
// away from zero so a confidently wrong prediction yields a large finite
// penalty.
func LogLoss(yTrue *mat.VecDense, proba mat.Matrix) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("LogLoss", "empty vector")
	}
	rows, cols := proba.Dims()
	if rows != n {
		return 0, errors.NewDimensionError("LogLoss", n, rows, 0)
	}
	if cols < 2 {
		return 0, errors.NewValueError("LogLoss", "probability matrix needs at least 2 columns")
	}

	var sum float64
	for i := 0; i < n; i++ {
		label := int(yTrue.AtVec(i))
		if float64(label) != yTrue.AtVec(i) || label < 0 || label >= cols {
			return 0, errors.NewValueError("LogLoss", "labels must be class indices within the probability width")
		}
		sum -= errors.StabilizeLog(proba.At(i, label))
	}
	return sum / float64(n), nil
}

// ConfusionEntry counts one (true label, predicted label) cell.
type ConfusionEntry struct {
	TrueLabel      float64
	PredictedLabel float64
	Count          int
}

// ConfusionCounts tallies label pairs. Entries are keyed by the exact label
// values seen in the inputs.
func ConfusionCounts(yTrue, yPred *mat.VecDense) ([]ConfusionEntry, error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, errors.NewValueError("ConfusionCounts", "empty vector")
	}
	if yPred.Len() != n {
		return nil, errors.NewDimensionError("ConfusionCounts", n, yPred.Len(), 0)
	}

	type pair struct{ t, p float64 }
	counts := make(map[pair]int)
	order := make([]pair, 0)
	for i := 0; i < n; i++ {
		key := pair{yTrue.AtVec(i), yPred.AtVec(i)}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	entries := make([]ConfusionEntry, 0, len(order))
	for _, key := range order {
		entries = append(entries, ConfusionEntry{
			TrueLabel:      key.t,
			PredictedLabel: key.p,
			Count:          counts[key],
		})
	}
	return entries, nil
}
