package gbdt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/edgeml/edgeboost/core/model"
	"github.com/edgeml/edgeboost/pkg/errors"
)

// Regressor is a histogram gradient boosting regressor with the standard
// estimator surface. It wraps a GradientBoostingMachine configured for the
// least-squares objective.
type Regressor struct {
	model.BaseEstimator

	cfg Config
	gbm *GradientBoostingMachine
}

// NewRegressor creates a regressor with the given hyperparameters. The loss
// is always least squares; cfg.Loss and cfg.NumClasses are overridden.
func NewRegressor(cfg Config) *Regressor {
	cfg.Loss = LossLeastSquares
	cfg.NumClasses = 0
	return &Regressor{cfg: cfg}
}

// NewDefaultRegressor creates a regressor with DefaultConfig hyperparameters.
func NewDefaultRegressor() *Regressor {
	return NewRegressor(DefaultConfig())
}

// Fit trains the regressor on X and the target column y.
func (r *Regressor) Fit(X, y mat.Matrix) error {
	targets, err := columnTargets("Regressor.Fit", y)
	if err != nil {
		return err
	}

	gbm, err := NewGradientBoostingMachine(r.cfg)
	if err != nil {
		return err
	}
	if err := gbm.Fit(X, targets); err != nil {
		return err
	}

	r.gbm = gbm
	r.SetFitted()
	return nil
}

// Predict returns an (n_samples, 1) matrix of predicted values.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("Regressor", "Predict")
	}
	return r.gbm.Predict(X)
}

// Machine returns the underlying fitted boosting machine.
func (r *Regressor) Machine() *GradientBoostingMachine {
	return r.gbm
}

// Classifier is a histogram gradient boosting classifier. Binary problems
// use the logistic objective with a single tree per round; problems with
// three or more classes use the softmax objective with one tree per class
// per round. The choice is made from the labels seen in Fit.
//
// Labels may be arbitrary float64 values; they are mapped to class indices
// internally and mapped back in Predict.
type Classifier struct {
	model.BaseEstimator

	cfg Config
	gbm *GradientBoostingMachine

	// classes holds the distinct training labels in ascending order; the
	// position of a label is its class index.
	classes []float64
}

// NewClassifier creates a classifier with the given hyperparameters. The
// loss is chosen during Fit; cfg.Loss and cfg.NumClasses are overridden.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// NewDefaultClassifier creates a classifier with DefaultConfig
// hyperparameters.
func NewDefaultClassifier() *Classifier {
	return NewClassifier(DefaultConfig())
}

// Fit trains the classifier on X and the label column y.
func (c *Classifier) Fit(X, y mat.Matrix) error {
	labels, err := columnTargets("Classifier.Fit", y)
	if err != nil {
		return err
	}

	classes, encoded, err := encodeLabels(labels)
	if err != nil {
		return err
	}

	cfg := c.cfg
	if len(classes) == 2 {
		cfg.Loss = LossBinaryCrossEntropy
		cfg.NumClasses = 0
	} else {
		cfg.Loss = LossCategoricalCE
		cfg.NumClasses = len(classes)
	}

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		return err
	}
	if err := gbm.Fit(X, encoded); err != nil {
		return err
	}

	c.gbm = gbm
	c.classes = classes
	c.SetFitted()
	return nil
}

// Predict returns an (n_samples, 1) matrix of predicted labels, in the
// label space seen during Fit.
func (c *Classifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probaMat, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	proba := probaMat.(*mat.Dense)

	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, c.classes[argmax(proba.RawRowView(i))])
	}
	return out, nil
}

// PredictProba returns an (n_samples, n_classes) matrix of class
// probabilities, columns ordered by ascending label.
func (c *Classifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !c.IsFitted() {
		return nil, errors.NewNotFittedError("Classifier", "PredictProba")
	}

	pred, err := c.gbm.Predict(X)
	if err != nil {
		return nil, err
	}
	if len(c.classes) > 2 {
		return pred, nil
	}

	// The binary objective yields P(class 1); expand to two columns.
	rows, _ := pred.Dims()
	out := mat.NewDense(rows, 2, nil)
	for i := 0; i < rows; i++ {
		p := pred.At(i, 0)
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Classes returns the distinct training labels in ascending order.
func (c *Classifier) Classes() []float64 {
	return append([]float64(nil), c.classes...)
}

// Machine returns the underlying fitted boosting machine.
func (c *Classifier) Machine() *GradientBoostingMachine {
	return c.gbm
}

// columnTargets flattens an (n, 1) target matrix into a slice.
func columnTargets(op string, y mat.Matrix) ([]float64, error) {
	rows, cols := y.Dims()
	if cols != 1 {
		return nil, errors.NewDimensionError(op, 1, cols, 1)
	}
	targets := make([]float64, rows)
	for i := 0; i < rows; i++ {
		targets[i] = y.At(i, 0)
	}
	return targets, nil
}

// encodeLabels maps arbitrary labels to dense class indices. Labels must be
// finite and there must be at least two classes.
func encodeLabels(labels []float64) (classes, encoded []float64, err error) {
	seen := make(map[float64]struct{})
	for _, v := range labels {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, errors.NewValueError("Classifier.Fit",
				"labels contain non-finite values")
		}
		seen[v] = struct{}{}
	}
	if len(seen) < 2 {
		return nil, nil, errors.NewValueError("Classifier.Fit",
			"need at least 2 distinct classes")
	}

	classes = make([]float64, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Float64s(classes)

	index := make(map[float64]int, len(classes))
	for i, v := range classes {
		index[v] = i
	}
	encoded = make([]float64, len(labels))
	for i, v := range labels {
		encoded[i] = float64(index[v])
	}
	return classes, encoded, nil
}

func argmax(row []float64) int {
	best := 0
	for k := 1; k < len(row); k++ {
		if row[k] > row[best] {
			best = k
		}
	}
	return best
}

var (
	_ model.Estimator               = (*Regressor)(nil)
	_ model.ProbabilisticClassifier = (*Classifier)(nil)
)
