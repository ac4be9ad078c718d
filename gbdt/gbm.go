package gbdt

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/edgeml/edgeboost/pkg/errors"
	"github.com/edgeml/edgeboost/pkg/log"
)

// Config holds the hyperparameters of a GradientBoostingMachine.
type Config struct {
	// Loss is the objective name: "least_squares", "binary_crossentropy",
	// or "categorical_crossentropy".
	Loss string

	// NumClasses is the class count for the categorical objective. Ignored
	// by single-output losses.
	NumClasses int

	// MaxIter is the number of boosting rounds. A categorical objective
	// grows NumClasses trees per round.
	MaxIter int

	// LearningRate shrinks every tree's leaf values before they are added
	// to the ensemble.
	LearningRate float64

	// MaxBins is the per-feature bin budget, at most 256.
	MaxBins int

	// MaxLeafNodes caps the leaves of each tree; growth is leaf-wise, so
	// this is the primary complexity control. MaxDepth of 0 means no depth
	// limit.
	MaxLeafNodes int
	MaxDepth     int

	MinSamplesLeaf   int
	L2Regularization float64
	MinGainToSplit   float64

	// NIterNoChange enables early stopping: training stops when the
	// holdout loss has not improved by more than Tolerance for this many
	// consecutive rounds. Zero disables early stopping and the holdout
	// split entirely.
	NIterNoChange      int
	ValidationFraction float64
	Tolerance          float64

	// Seed drives the holdout shuffle. Equal seeds and inputs produce
	// bit-identical models.
	Seed int64
}

// DefaultConfig returns the standard hyperparameters for a least-squares
// model.
func DefaultConfig() Config {
	return Config{
		Loss:               LossLeastSquares,
		MaxIter:            100,
		LearningRate:       0.1,
		MaxBins:            256,
		MaxLeafNodes:       31,
		MinSamplesLeaf:     20,
		L2Regularization:   1.0,
		MinGainToSplit:     0.0,
		NIterNoChange:      0,
		ValidationFraction: 0.1,
		Tolerance:          1e-7,
	}
}

func (c *Config) validate() error {
	if c.MaxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", c.MaxIter)
	}
	if c.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", c.LearningRate)
	}
	if c.MaxBins < 2 || c.MaxBins > MaxBinCount {
		return errors.NewValidationError("max_bins", "must be between 2 and 256", c.MaxBins)
	}
	if c.MaxLeafNodes < 2 {
		return errors.NewValidationError("max_leaf_nodes", "must be >= 2", c.MaxLeafNodes)
	}
	if c.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0", c.MaxDepth)
	}
	if c.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", c.MinSamplesLeaf)
	}
	if c.L2Regularization < 0 {
		return errors.NewValidationError("l2_regularization", "must be >= 0", c.L2Regularization)
	}
	if c.MinGainToSplit < 0 {
		return errors.NewValidationError("min_gain_to_split", "must be >= 0", c.MinGainToSplit)
	}
	if c.NIterNoChange < 0 {
		return errors.NewValidationError("n_iter_no_change", "must be >= 0", c.NIterNoChange)
	}
	if c.NIterNoChange > 0 && (c.ValidationFraction <= 0 || c.ValidationFraction >= 1) {
		return errors.NewValidationError("validation_fraction",
			"must be in (0, 1) when early stopping is enabled", c.ValidationFraction)
	}
	return nil
}

// GradientBoostingMachine trains an additive ensemble of histogram-based
// regression trees by gradient boosting. Each round fits one tree per output
// stream to the negative gradients of the loss at the current predictions,
// shrinks the tree by the learning rate, and adds it to the ensemble.
//
// The input matrix is quantized once up front; all tree growth runs on the
// uint8 bin codes.
type GradientBoostingMachine struct {
	cfg    Config
	loss   Loss
	mapper *BinMapper

	// baseline is the constant initial raw score per output stream; trees
	// are corrections on top of it.
	baseline []float64

	// trees[i][k] is round i's tree for output stream k.
	trees [][]*TreePredictor

	trainScores []float64
	validScores []float64

	numFeatures int
	fitted      bool

	logger log.Logger
}

// NewGradientBoostingMachine validates the configuration and creates an
// unfitted machine.
func NewGradientBoostingMachine(cfg Config) (*GradientBoostingMachine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	loss, err := NewLoss(cfg.Loss, cfg.NumClasses)
	if err != nil {
		return nil, err
	}
	return &GradientBoostingMachine{
		cfg:    cfg,
		loss:   loss,
		logger: log.GetLoggerWithName("gbdt.trainer"),
	}, nil
}

// Fit trains the ensemble on X and y. For classification losses y holds
// class indices encoded as float64.
func (gbm *GradientBoostingMachine) Fit(X mat.Matrix, y []float64) error {
	start := time.Now()
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if len(y) != rows {
		return errors.NewDimensionError("GradientBoostingMachine.Fit", rows, len(y), 0)
	}
	if err := gbm.validateTargets(y); err != nil {
		return err
	}

	// Bin edges are learned on the full dataset so that the holdout split
	// sees the same quantization as the training rows.
	mapper, err := NewBinMapper(gbm.cfg.MaxBins)
	if err != nil {
		return err
	}
	binned, err := mapper.FitTransform(X)
	if err != nil {
		return err
	}

	trainBinned, validBinned, yTrain, yValid, err := gbm.holdoutSplit(binned, y)
	if err != nil {
		return err
	}

	k := gbm.loss.NumOutputs()
	nTrain, _ := trainBinned.Dims()

	gbm.mapper = mapper
	gbm.numFeatures = cols
	gbm.baseline = gbm.loss.InitScore(yTrain)
	gbm.trees = nil
	gbm.trainScores = nil
	gbm.validScores = nil

	rawTrain := gbm.initialRaw(nTrain)
	var rawValid []float64
	if validBinned != nil {
		nValid, _ := validBinned.Dims()
		rawValid = gbm.initialRaw(nValid)
	}

	grads := make([]float64, k*nTrain)
	hess := make([]float64, k*nTrain)
	binCounts := mapper.BinCounts()

	growCfg := growerConfig{
		MaxLeafNodes:     gbm.cfg.MaxLeafNodes,
		MaxDepth:         gbm.cfg.MaxDepth,
		MinSamplesLeaf:   gbm.cfg.MinSamplesLeaf,
		L2Regularization: gbm.cfg.L2Regularization,
		MinGainToSplit:   gbm.cfg.MinGainToSplit,
	}

	gbm.logger.Info("training started",
		log.SamplesKey, nTrain,
		log.FeaturesKey, cols,
		"loss", gbm.loss.Name(),
		"max_iter", gbm.cfg.MaxIter,
	)

	bestValid := math.Inf(1)
	roundsWithoutImprovement := 0

	for iter := 0; iter < gbm.cfg.MaxIter; iter++ {
		gbm.loss.UpdateGradientsAndHessians(grads, hess, yTrain, rawTrain)
		if err := errors.CheckNumericalStability("gradients", grads, iter); err != nil {
			return err
		}

		round := make([]*TreePredictor, k)
		for classIdx := 0; classIdx < k; classIdx++ {
			streamGrads := grads[classIdx*nTrain : (classIdx+1)*nTrain]
			streamHess := hess[classIdx*nTrain : (classIdx+1)*nTrain]

			grower, err := newTreeGrower(trainBinned, binCounts, streamGrads, streamHess,
				growCfg, mapper, k, classIdx)
			if err != nil {
				return err
			}
			tree, err := grower.grow()
			if err != nil {
				return err
			}
			tree.scaleLeaves(gbm.cfg.LearningRate)
			round[classIdx] = tree

			if err := addTreeOutput(rawTrain, tree, trainBinned, classIdx); err != nil {
				return err
			}
			if validBinned != nil {
				if err := addTreeOutput(rawValid, tree, validBinned, classIdx); err != nil {
					return err
				}
			}
		}
		gbm.trees = append(gbm.trees, round)

		trainLoss := gbm.loss.Value(yTrain, rawTrain)
		if err := errors.CheckScalar("training_loss", trainLoss, iter); err != nil {
			return err
		}
		gbm.trainScores = append(gbm.trainScores, trainLoss)

		fields := []any{
			log.IterationKey, iter,
			log.TrainLossKey, trainLoss,
			log.TreesKey, len(gbm.trees) * k,
		}

		stop := false
		if validBinned != nil {
			validLoss := gbm.loss.Value(yValid, rawValid)
			if err := errors.CheckScalar("validation_loss", validLoss, iter); err != nil {
				return err
			}
			gbm.validScores = append(gbm.validScores, validLoss)
			fields = append(fields, log.ValidLossKey, validLoss)

			if validLoss < bestValid-gbm.cfg.Tolerance {
				bestValid = validLoss
				roundsWithoutImprovement = 0
			} else {
				roundsWithoutImprovement++
				if roundsWithoutImprovement >= gbm.cfg.NIterNoChange {
					stop = true
				}
			}
		}

		gbm.logger.Debug("boosting round complete", fields...)
		if stop {
			gbm.logger.Info("early stopping triggered",
				log.IterationKey, iter,
				log.ValidLossKey, gbm.validScores[len(gbm.validScores)-1],
				"rounds_without_improvement", roundsWithoutImprovement,
			)
			break
		}
	}

	gbm.fitted = true
	gbm.logger.Info("training finished",
		log.TreesKey, len(gbm.trees)*k,
		log.TrainLossKey, gbm.trainScores[len(gbm.trainScores)-1],
		log.DurationMsKey, int(time.Since(start).Milliseconds()),
	)
	return nil
}

// validateTargets checks that classification targets are integral class
// indices within range.
func (gbm *GradientBoostingMachine) validateTargets(y []float64) error {
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValueError("GradientBoostingMachine.Fit",
				"targets contain non-finite values")
		}
	}
	switch gbm.loss.(type) {
	case *BinaryCrossEntropyLoss:
		for _, v := range y {
			if v != 0 && v != 1 {
				return errors.NewValueError("GradientBoostingMachine.Fit",
					"binary cross-entropy targets must be 0 or 1")
			}
		}
	case *CategoricalCrossEntropyLoss:
		for _, v := range y {
			if v != math.Trunc(v) || v < 0 || int(v) >= gbm.cfg.NumClasses {
				return errors.NewValueError("GradientBoostingMachine.Fit",
					"categorical targets must be class indices in [0, num_classes)")
			}
		}
	}
	return nil
}

// holdoutSplit carves a validation subset out of the binned dataset when
// early stopping is enabled. The shuffle is seeded, so the split is
// reproducible.
func (gbm *GradientBoostingMachine) holdoutSplit(binned *BinnedMatrix, y []float64,
) (trainBinned, validBinned *BinnedMatrix, yTrain, yValid []float64, err error) {
	if gbm.cfg.NIterNoChange == 0 {
		return binned, nil, y, nil, nil
	}

	rows, _ := binned.Dims()
	nValid := int(float64(rows) * gbm.cfg.ValidationFraction)
	if nValid == 0 || nValid == rows {
		return nil, nil, nil, nil, errors.Wrapf(errors.ErrEmptyValidationSet,
			"validation_fraction %v of %d samples", gbm.cfg.ValidationFraction, rows)
	}

	perm := rand.New(rand.NewSource(gbm.cfg.Seed)).Perm(rows)
	validIdx := perm[:nValid]
	trainIdx := perm[nValid:]

	trainBinned, err = binned.TakeRows(trainIdx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	validBinned, err = binned.TakeRows(validIdx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	yTrain = make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		yTrain[i] = y[idx]
	}
	yValid = make([]float64, len(validIdx))
	for i, idx := range validIdx {
		yValid[i] = y[idx]
	}
	return trainBinned, validBinned, yTrain, yValid, nil
}

// initialRaw allocates a class-major raw-score buffer filled with the
// baseline of each output stream.
func (gbm *GradientBoostingMachine) initialRaw(n int) []float64 {
	k := gbm.loss.NumOutputs()
	raw := make([]float64, k*n)
	for classIdx := 0; classIdx < k; classIdx++ {
		b := gbm.baseline[classIdx]
		for i := 0; i < n; i++ {
			raw[classIdx*n+i] = b
		}
	}
	return raw
}

// addTreeOutput accumulates one tree's leaf values into the class-major raw
// buffer. Only the tree's own output stream carries nonzero values.
func addTreeOutput(raw []float64, tree *TreePredictor, binned *BinnedMatrix, classIdx int) error {
	out, err := tree.PredictBinned(binned)
	if err != nil {
		return err
	}
	n, _ := binned.Dims()
	for i := 0; i < n; i++ {
		raw[classIdx*n+i] += out.At(i, classIdx)
	}
	return nil
}

// RawPredict returns the ensemble's raw (pre-link) scores for X as an
// (n_samples, n_outputs) matrix: baseline plus every tree's contribution.
func (gbm *GradientBoostingMachine) RawPredict(X mat.Matrix) (*mat.Dense, error) {
	if !gbm.fitted {
		return nil, errors.NewNotFittedError("GradientBoostingMachine", "RawPredict")
	}
	rows, cols := X.Dims()
	if cols != gbm.numFeatures {
		return nil, errors.NewDimensionError("GradientBoostingMachine.RawPredict",
			gbm.numFeatures, cols, 1)
	}

	binned, err := gbm.mapper.Transform(X)
	if err != nil {
		return nil, err
	}
	return gbm.rawPredictBinned(binned, rows)
}

// RawPredictBinned is RawPredict for pre-binned input, skipping the
// quantization step.
func (gbm *GradientBoostingMachine) RawPredictBinned(binned *BinnedMatrix) (*mat.Dense, error) {
	if !gbm.fitted {
		return nil, errors.NewNotFittedError("GradientBoostingMachine", "RawPredictBinned")
	}
	if binned == nil {
		return nil, errors.NewDTypeError("GradientBoostingMachine.RawPredictBinned",
			"uint8 bin codes", "nil")
	}
	rows, cols := binned.Dims()
	if cols != gbm.numFeatures {
		return nil, errors.NewDimensionError("GradientBoostingMachine.RawPredictBinned",
			gbm.numFeatures, cols, 1)
	}
	return gbm.rawPredictBinned(binned, rows)
}

func (gbm *GradientBoostingMachine) rawPredictBinned(binned *BinnedMatrix, rows int) (*mat.Dense, error) {
	k := gbm.loss.NumOutputs()
	out := mat.NewDense(rows, k, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, gbm.baseline)
	}
	for _, round := range gbm.trees {
		for _, tree := range round {
			contribution, err := tree.PredictBinned(binned)
			if err != nil {
				return nil, err
			}
			out.Add(out, contribution)
		}
	}
	return out, nil
}

// Predict returns the ensemble output after the loss's inverse link:
// raw values for regression, probabilities for classification losses.
func (gbm *GradientBoostingMachine) Predict(X mat.Matrix) (*mat.Dense, error) {
	raw, err := gbm.RawPredict(X)
	if err != nil {
		return nil, err
	}
	rows, _ := raw.Dims()
	for i := 0; i < rows; i++ {
		gbm.loss.TransformInPlace(raw.RawRowView(i))
	}
	return raw, nil
}

// IsFitted reports whether Fit has completed successfully.
func (gbm *GradientBoostingMachine) IsFitted() bool {
	return gbm.fitted
}

// NumIterations returns the number of boosting rounds actually performed,
// which is below MaxIter when early stopping fired.
func (gbm *GradientBoostingMachine) NumIterations() int {
	return len(gbm.trees)
}

// NumTrees returns the total tree count across all rounds and output
// streams.
func (gbm *GradientBoostingMachine) NumTrees() int {
	return len(gbm.trees) * gbm.loss.NumOutputs()
}

// TrainScores returns the per-round training loss.
func (gbm *GradientBoostingMachine) TrainScores() []float64 {
	return append([]float64(nil), gbm.trainScores...)
}

// ValidScores returns the per-round holdout loss. Empty when early stopping
// was disabled.
func (gbm *GradientBoostingMachine) ValidScores() []float64 {
	return append([]float64(nil), gbm.validScores...)
}

// Loss returns the fitted objective.
func (gbm *GradientBoostingMachine) Loss() Loss {
	return gbm.loss
}

// BinMapper returns the fitted feature quantizer.
func (gbm *GradientBoostingMachine) BinMapper() *BinMapper {
	return gbm.mapper
}
