package gbdt

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edgeml/edgeboost/pkg/errors"
)

func fitSmallRegressor(t *testing.T) *GradientBoostingMachine {
	t.Helper()
	rng := rand.New(rand.NewSource(17))
	X, y := regressionData(120, rng)

	cfg := DefaultConfig()
	cfg.MaxIter = 5
	cfg.MinSamplesLeaf = 5

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	if err := gbm.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return gbm
}

func TestSaveLoadRoundTrip(t *testing.T) {
	gbm := fitSmallRegressor(t)

	var buf bytes.Buffer
	if err := gbm.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.IsFitted() {
		t.Fatal("loaded model reports unfitted")
	}
	if loaded.NumIterations() != gbm.NumIterations() {
		t.Errorf("NumIterations = %d, want %d", loaded.NumIterations(), gbm.NumIterations())
	}

	rng := rand.New(rand.NewSource(23))
	X, _ := regressionData(40, rng)

	want, err := gbm.Predict(X)
	if err != nil {
		t.Fatalf("Predict (original): %v", err)
	}
	got, err := loaded.Predict(X)
	if err != nil {
		t.Fatalf("Predict (loaded): %v", err)
	}

	rows, _ := want.Dims()
	for i := 0; i < rows; i++ {
		if got.At(i, 0) != want.At(i, 0) {
			t.Errorf("prediction %d: loaded %v, original %v", i, got.At(i, 0), want.At(i, 0))
		}
	}
}

func TestSaveLoadFile(t *testing.T) {
	gbm := fitSmallRegressor(t)
	path := filepath.Join(t.TempDir(), "model.json")

	if err := gbm.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.NumTrees() != gbm.NumTrees() {
		t.Errorf("NumTrees = %d, want %d", loaded.NumTrees(), gbm.NumTrees())
	}
}

func TestSaveUnfitted(t *testing.T) {
	gbm, err := NewGradientBoostingMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	var buf bytes.Buffer
	err = gbm.Save(&buf)
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("Save before Fit: got %v, want NotFittedError", err)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load(strings.NewReader("not json")); err == nil {
		t.Error("Load accepted malformed input")
	}
}

func TestLoadRejectsUnknownFormatVersion(t *testing.T) {
	gbm := fitSmallRegressor(t)
	var buf bytes.Buffer
	if err := gbm.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tampered := strings.Replace(buf.String(), `"format_version":1`, `"format_version":99`, 1)
	if tampered == buf.String() {
		t.Fatal("format_version field not found in serialized model")
	}
	_, err := Load(strings.NewReader(tampered))
	var ve *errors.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Load with unknown version: got %v, want ValidationError", err)
	}
}

func TestSaveLoadClassifierModel(t *testing.T) {
	X := matFromColumn([]float64{0, 1, 2, 3, 10, 11, 12, 13})
	y := []float64{0, 0, 0, 0, 1, 1, 1, 1}

	cfg := DefaultConfig()
	cfg.Loss = LossBinaryCrossEntropy
	cfg.MaxIter = 3
	cfg.MaxLeafNodes = 2
	cfg.MinSamplesLeaf = 1

	gbm, err := NewGradientBoostingMachine(cfg)
	if err != nil {
		t.Fatalf("NewGradientBoostingMachine: %v", err)
	}
	if err := gbm.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	var buf bytes.Buffer
	if err := gbm.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Loss().Name() != LossBinaryCrossEntropy {
		t.Errorf("loaded loss = %q, want %q", loaded.Loss().Name(), LossBinaryCrossEntropy)
	}

	want, _ := gbm.Predict(X)
	got, err := loaded.Predict(X)
	if err != nil {
		t.Fatalf("Predict (loaded): %v", err)
	}
	for i := range y {
		if got.At(i, 0) != want.At(i, 0) {
			t.Errorf("probability %d: loaded %v, original %v", i, got.At(i, 0), want.At(i, 0))
		}
	}
}
