package gbdt

import (
	"math"

	"github.com/edgeml/edgeboost/pkg/errors"
)

// Loss computes per-sample gradients and hessians of an objective with
// respect to the raw (pre-link) predictions, plus the scalar loss value and
// the inverse link for user-facing output.
//
// Raw predictions, gradients, and hessians are stored class-major: stream k
// occupies [k*n, (k+1)*n), so each tree of a multiclass round trains against
// one contiguous slice. Single-output losses use one stream.
type Loss interface {
	// Name returns the canonical loss name.
	Name() string

	// NumOutputs returns the number of raw-score streams (1, or the number
	// of classes for categorical objectives).
	NumOutputs() int

	// InitScore returns the boosting bias term, one entry per stream.
	InitScore(y []float64) []float64

	// UpdateGradientsAndHessians fills grads and hess (class-major,
	// NumOutputs*len(y) entries) from the targets and the current raw
	// predictions.
	UpdateGradientsAndHessians(grads, hess, y, rawPredictions []float64)

	// Value returns the mean loss of the raw predictions against y.
	Value(y, rawPredictions []float64) float64

	// TransformInPlace applies the inverse link to an (n, NumOutputs) row
	// of raw scores, converting them to user-facing output.
	TransformInPlace(row []float64)
}

// Canonical loss names.
const (
	LossLeastSquares       = "least_squares"
	LossBinaryCrossEntropy = "binary_crossentropy"
	LossCategoricalCE      = "categorical_crossentropy"
)

// NewLoss creates a loss by name. numClasses is required (>= 3) for the
// categorical objective and ignored otherwise.
func NewLoss(name string, numClasses int) (Loss, error) {
	switch name {
	case LossLeastSquares:
		return &LeastSquaresLoss{}, nil
	case LossBinaryCrossEntropy:
		return &BinaryCrossEntropyLoss{}, nil
	case LossCategoricalCE:
		if numClasses < 3 {
			return nil, errors.NewValidationError("num_classes",
				"categorical cross-entropy requires at least 3 classes", numClasses)
		}
		return &CategoricalCrossEntropyLoss{numClasses: numClasses}, nil
	default:
		return nil, errors.NewValidationError("loss", "unknown loss", name)
	}
}

// LeastSquaresLoss is the squared-error regression objective:
// gradient = prediction - target, hessian = 1.
type LeastSquaresLoss struct{}

func (l *LeastSquaresLoss) Name() string { return LossLeastSquares }

func (l *LeastSquaresLoss) NumOutputs() int { return 1 }

// InitScore is the target mean, the minimizer of the squared error.
func (l *LeastSquaresLoss) InitScore(y []float64) []float64 {
	sum := 0.0
	for _, v := range y {
		sum += v
	}
	return []float64{sum / float64(len(y))}
}

func (l *LeastSquaresLoss) UpdateGradientsAndHessians(grads, hess, y, rawPredictions []float64) {
	for i := range y {
		grads[i] = rawPredictions[i] - y[i]
		hess[i] = 1.0
	}
}

func (l *LeastSquaresLoss) Value(y, rawPredictions []float64) float64 {
	sum := 0.0
	for i := range y {
		diff := rawPredictions[i] - y[i]
		sum += 0.5 * diff * diff
	}
	return sum / float64(len(y))
}

// TransformInPlace is the identity for regression.
func (l *LeastSquaresLoss) TransformInPlace(row []float64) {}

// BinaryCrossEntropyLoss is the logistic objective over {0, 1} targets.
// With p = sigmoid(raw): gradient = p - y, hessian = p * (1 - p).
type BinaryCrossEntropyLoss struct{}

func (l *BinaryCrossEntropyLoss) Name() string { return LossBinaryCrossEntropy }

func (l *BinaryCrossEntropyLoss) NumOutputs() int { return 1 }

// InitScore is the log-odds of the positive class, clipped away from the
// degenerate all-one / all-zero cases.
func (l *BinaryCrossEntropyLoss) InitScore(y []float64) []float64 {
	sum := 0.0
	for _, v := range y {
		sum += v
	}
	p := errors.ClipValue(sum/float64(len(y)), 1e-12, 1-1e-12)
	return []float64{math.Log(p / (1 - p))}
}

func (l *BinaryCrossEntropyLoss) UpdateGradientsAndHessians(grads, hess, y, rawPredictions []float64) {
	const minHessian = 1e-16
	for i := range y {
		p := errors.Sigmoid(rawPredictions[i])
		grads[i] = p - y[i]
		h := p * (1 - p)
		if h < minHessian {
			h = minHessian
		}
		hess[i] = h
	}
}

// Value is the mean negative log-likelihood, computed from the raw score
// without forming the probability, so extreme scores do not overflow.
func (l *BinaryCrossEntropyLoss) Value(y, rawPredictions []float64) float64 {
	sum := 0.0
	for i := range y {
		raw := rawPredictions[i]
		// log(1 + exp(raw)) - y*raw, stable for both signs of raw.
		sum += math.Max(raw, 0) + math.Log1p(math.Exp(-math.Abs(raw))) - y[i]*raw
	}
	return sum / float64(len(y))
}

func (l *BinaryCrossEntropyLoss) TransformInPlace(row []float64) {
	row[0] = errors.Sigmoid(row[0])
}

// CategoricalCrossEntropyLoss is the softmax objective over K classes.
// Targets are class indices encoded as float64. Each class gets its own
// gradient/hessian stream, which is why multiclass boosting fits K trees per
// round.
type CategoricalCrossEntropyLoss struct {
	numClasses int
}

func (l *CategoricalCrossEntropyLoss) Name() string { return LossCategoricalCE }

func (l *CategoricalCrossEntropyLoss) NumOutputs() int { return l.numClasses }

// InitScore is the log of each class prior.
func (l *CategoricalCrossEntropyLoss) InitScore(y []float64) []float64 {
	counts := make([]float64, l.numClasses)
	for _, v := range y {
		counts[int(v)]++
	}
	scores := make([]float64, l.numClasses)
	n := float64(len(y))
	for k := range scores {
		scores[k] = errors.StabilizeLog(counts[k] / n)
	}
	return scores
}

func (l *CategoricalCrossEntropyLoss) UpdateGradientsAndHessians(grads, hess, y, rawPredictions []float64) {
	const minHessian = 1e-16
	n := len(y)
	logits := make([]float64, l.numClasses)
	probs := make([]float64, l.numClasses)
	for i := 0; i < n; i++ {
		for k := 0; k < l.numClasses; k++ {
			logits[k] = rawPredictions[k*n+i]
		}
		softmax(logits, probs)

		trueClass := int(y[i])
		for k := 0; k < l.numClasses; k++ {
			p := probs[k]
			g := p
			if k == trueClass {
				g = p - 1.0
			}
			h := p * (1 - p)
			if h < minHessian {
				h = minHessian
			}
			grads[k*n+i] = g
			hess[k*n+i] = h
		}
	}
}

// Value is the mean cross-entropy, -log p_true, via a stable log-sum-exp.
func (l *CategoricalCrossEntropyLoss) Value(y, rawPredictions []float64) float64 {
	n := len(y)
	logits := make([]float64, l.numClasses)
	sum := 0.0
	for i := 0; i < n; i++ {
		for k := 0; k < l.numClasses; k++ {
			logits[k] = rawPredictions[k*n+i]
		}
		sum += errors.LogSumExp(logits) - logits[int(y[i])]
	}
	return sum / float64(n)
}

func (l *CategoricalCrossEntropyLoss) TransformInPlace(row []float64) {
	probs := make([]float64, len(row))
	softmax(row, probs)
	copy(row, probs)
}

// softmax fills probs with the softmax of logits, shifted by the maximum
// for numerical stability.
func softmax(logits, probs []float64) {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	expSum := 0.0
	for k, v := range logits {
		probs[k] = math.Exp(v - maxLogit)
		expSum += probs[k]
	}
	if expSum > 0 {
		for k := range probs {
			probs[k] /= expSum
		}
	}
}
