package gbdt

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/edgeml/edgeboost/pkg/errors"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max_iter", func(c *Config) { c.MaxIter = 0 }},
		{"learning_rate", func(c *Config) { c.LearningRate = 0 }},
		{"max_bins low", func(c *Config) { c.MaxBins = 1 }},
		{"max_bins high", func(c *Config) { c.MaxBins = 300 }},
		{"max_leaf_nodes", func(c *Config) { c.MaxLeafNodes = 1 }},
		{"max_depth", func(c *Config) { c.MaxDepth = -1 }},
		{"min_samples_leaf", func(c *Config) { c.MinSamplesLeaf = 0 }},
		{"l2", func(c *Config) { c.L2Regularization = -0.1 }},
		{"min_gain", func(c *Config) { c.MinGainToSplit = -1 }},
		{"validation_fraction", func(c *Config) {
			c.NIterNoChange = 5
			c.ValidationFraction = 1.5
		}},
		{"unknown loss", func(c *Config) { c.Loss = "poisson" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewGradientBoostingMachine(cfg); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func regressionData(n int, rng *rand.Rand) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := rng.Float64() * 10
		b := rng.Float64() * 10
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		y[i] = 3*a - b
	}
	return X, y
}

func TestFitRegressionReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	X, y := regressionData(200, rng)

	cfg := DefaultConfig()
	cfg.MaxIter = 30
	cfg.LearningRate = 0.3
	cfg.MinSamplesLeaf = 5
	cfg.L2Regularization = 0

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	if err := gbm.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	scores := gbm.TrainScores()
	if len(scores) != 30 {
		t.Fatalf("got %d rounds, want 30", len(scores))
	}
	// Each least-squares boosting step shrinks the training loss.
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1]+1e-12 {
			t.Fatalf("training loss rose at round %d: %v -> %v", i, scores[i-1], scores[i])
		}
	}
	if scores[len(scores)-1] >= scores[0]/2 {
		t.Errorf("final loss %v did not reach half the initial %v", scores[len(scores)-1], scores[0])
	}
}

func TestFitIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	X, y := regressionData(150, rng)

	cfg := DefaultConfig()
	cfg.MaxIter = 10
	cfg.MinSamplesLeaf = 5
	cfg.NIterNoChange = 5
	cfg.ValidationFraction = 0.2
	cfg.Seed = 99

	fit := func() (*GradientBoostingMachine, *mat.Dense) {
		gbm, err := NewGradientBoostingMachine(cfg)
		if err != nil {
			t.Fatalf("NewGradientBoostingMachine: %v", err)
		}
		if err := gbm.Fit(X, y); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		pred, err := gbm.Predict(X)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		return gbm, pred
	}

	a, predA := fit()
	b, predB := fit()

	scoresA, scoresB := a.TrainScores(), b.TrainScores()
	if len(scoresA) != len(scoresB) {
		t.Fatalf("round counts differ: %d vs %d", len(scoresA), len(scoresB))
	}
	for i := range scoresA {
		if scoresA[i] != scoresB[i] {
			t.Fatalf("train loss differs at round %d: %v vs %v", i, scoresA[i], scoresB[i])
		}
	}

	rows, _ := predA.Dims()
	for i := 0; i < rows; i++ {
		if predA.At(i, 0) != predB.At(i, 0) {
			t.Fatalf("prediction differs at row %d: %v vs %v", i, predA.At(i, 0), predB.At(i, 0))
		}
	}
}

func TestFitBinarySeparable(t *testing.T) {
	// Two well-separated groups: a single stump must classify perfectly.
	X := matFromColumn([]float64{0, 1, 2, 3, 10, 11, 12, 13})
	y := []float64{0, 0, 0, 0, 1, 1, 1, 1}

	cfg := DefaultConfig()
	cfg.Loss = LossBinaryCrossEntropy
	cfg.MaxIter = 1
	cfg.LearningRate = 1
	cfg.MaxLeafNodes = 2
	cfg.MinSamplesLeaf = 1
	cfg.L2Regularization = 0

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	if err := gbm.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if got := gbm.NumTrees(); got != 1 {
		t.Errorf("NumTrees = %d, want 1", got)
	}
	tree := gbm.trees[0][0]
	if got := tree.NumLeafNodes(); got != 2 {
		t.Errorf("leaf count = %d, want 2", got)
	}

	pred, err := gbm.Predict(X)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i, label := range y {
		p := pred.At(i, 0)
		if (p >= 0.5) != (label == 1) {
			t.Errorf("sample %d: probability %v misclassifies label %v", i, p, label)
		}
	}
}

func TestFitMulticlass(t *testing.T) {
	// Three separated clusters on one feature.
	var values, y []float64
	for i := 0; i < 10; i++ {
		values = append(values, float64(i))
		y = append(y, 0)
	}
	for i := 0; i < 10; i++ {
		values = append(values, 100+float64(i))
		y = append(y, 1)
	}
	for i := 0; i < 10; i++ {
		values = append(values, 200+float64(i))
		y = append(y, 2)
	}
	X := matFromColumn(values)

	cfg := DefaultConfig()
	cfg.Loss = LossCategoricalCE
	cfg.NumClasses = 3
	cfg.MaxIter = 10
	cfg.LearningRate = 0.5
	cfg.MaxLeafNodes = 4
	cfg.MinSamplesLeaf = 1
	cfg.L2Regularization = 0

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	if err := gbm.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if got := gbm.NumTrees(); got != 30 {
		t.Errorf("NumTrees = %d, want 10 rounds * 3 classes = 30", got)
	}

	proba, err := gbm.Predict(X)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	rows, cols := proba.Dims()
	if cols != 3 {
		t.Fatalf("probability width = %d, want 3", cols)
	}
	for i := 0; i < rows; i++ {
		sum := 0.0
		best := 0
		for k := 0; k < 3; k++ {
			p := proba.At(i, k)
			sum += p
			if p > proba.At(i, best) {
				best = k
			}
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("sample %d: probabilities sum to %v", i, sum)
		}
		if best != int(y[i]) {
			t.Errorf("sample %d: predicted class %d, want %v", i, best, y[i])
		}
	}
}

func TestEarlyStoppingOnPlateau(t *testing.T) {
	// A constant target gives zero gradients: no tree improves the holdout
	// loss, so training stops after exactly NIterNoChange stale rounds.
	rng := rand.New(rand.NewSource(4))
	n := 100
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, rng.Float64())
		y[i] = 5
	}

	cfg := DefaultConfig()
	cfg.MaxIter = 200
	cfg.MinSamplesLeaf = 1
	cfg.NIterNoChange = 5
	cfg.ValidationFraction = 0.2

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	if err := gbm.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if got := gbm.NumIterations(); got != 1+cfg.NIterNoChange {
		t.Errorf("NumIterations = %d, want %d", got, 1+cfg.NIterNoChange)
	}
	if got := len(gbm.ValidScores()); got != gbm.NumIterations() {
		t.Errorf("validation scores length = %d, want %d", got, gbm.NumIterations())
	}
}

func TestEmptyValidationSplit(t *testing.T) {
	X := matFromColumn([]float64{1, 2, 3, 4, 5})
	y := []float64{1, 2, 3, 4, 5}

	cfg := DefaultConfig()
	cfg.MinSamplesLeaf = 1
	cfg.NIterNoChange = 3
	cfg.ValidationFraction = 0.1 // 0.1 * 5 samples rounds down to zero

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	err = gbm.Fit(X, y)
	if !errors.Is(err, errors.ErrEmptyValidationSet) {
		t.Errorf("Fit: got %v, want ErrEmptyValidationSet", err)
	}
}

func TestFitInputValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamplesLeaf = 1

	t.Run("target length mismatch", func(t *testing.T) {
		gbm, _ := NewGradientBoostingMachine(cfg)
		err := gbm.Fit(matFromColumn([]float64{1, 2, 3}), []float64{1, 2})
		var de *errors.DimensionError
		if !errors.As(err, &de) {
			t.Errorf("got %v, want DimensionError", err)
		}
	})

	t.Run("non-finite target", func(t *testing.T) {
		gbm, _ := NewGradientBoostingMachine(cfg)
		if err := gbm.Fit(matFromColumn([]float64{1, 2}), []float64{1, math.NaN()}); err == nil {
			t.Error("accepted NaN target")
		}
	})

	t.Run("binary targets outside 0/1", func(t *testing.T) {
		binCfg := cfg
		binCfg.Loss = LossBinaryCrossEntropy
		gbm, _ := NewGradientBoostingMachine(binCfg)
		if err := gbm.Fit(matFromColumn([]float64{1, 2}), []float64{0, 2}); err == nil {
			t.Error("accepted binary target outside {0, 1}")
		}
	})

	t.Run("categorical target out of range", func(t *testing.T) {
		catCfg := cfg
		catCfg.Loss = LossCategoricalCE
		catCfg.NumClasses = 3
		gbm, _ := NewGradientBoostingMachine(catCfg)
		if err := gbm.Fit(matFromColumn([]float64{1, 2, 3}), []float64{0, 1, 3}); err == nil {
			t.Error("accepted class index beyond num_classes")
		}
	})
}

func TestPredictBeforeFit(t *testing.T) {
	gbm, err := NewGradientBoostingMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	_, err = gbm.RawPredict(matFromColumn([]float64{1}))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("RawPredict before Fit: got %v, want NotFittedError", err)
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	X, y := regressionData(60, rng)

	cfg := DefaultConfig()
	cfg.MaxIter = 2
	cfg.MinSamplesLeaf = 1

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	if err := gbm.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	_, err = gbm.RawPredict(matFromColumn([]float64{1, 2}))
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Errorf("RawPredict with wrong width: got %v, want DimensionError", err)
	}
}
