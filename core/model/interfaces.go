package model

import (
	"gonum.org/v1/gonum/mat"
)

// Estimator is the minimal surface every supervised model exposes.
type Estimator interface {
	// Fit trains the model on feature matrix X and target y.
	Fit(X, y mat.Matrix) error

	// Predict returns predictions for X.
	Predict(X mat.Matrix) (mat.Matrix, error)

	// IsFitted reports whether Fit has completed successfully.
	IsFitted() bool
}

// ProbabilisticClassifier is implemented by classifiers that can report
// per-class probabilities in addition to hard labels.
type ProbabilisticClassifier interface {
	Estimator

	// PredictProba returns an (n_samples, n_classes) probability matrix.
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}
