// Package edgeboost provides histogram-based gradient boosted decision trees
// for Go, designed for reproducible training and fast batch inference in
// backend services.
//
// The training pipeline quantizes features into at most 256 bins and grows
// trees leaf-wise over per-bin gradient histograms, the approach used by
// modern boosting libraries. Training is deterministic: a fixed seed and
// input produce bit-identical models.
//
// # Installation
//
//	go get github.com/edgeml/edgeboost
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/edgeml/edgeboost/gbdt"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
//	    y := mat.NewDense(6, 1, []float64{2, 4, 6, 8, 10, 12})
//
//	    reg := gbdt.NewDefaultRegressor()
//	    if err := reg.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    pred, err := reg.Predict(mat.NewDense(1, 1, []float64{3.5}))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("prediction:", pred)
//	}
//
// # Packages
//
//   - gbdt: binning, tree growth, losses, boosting machine, estimators,
//     and JSON model persistence
//   - metrics: evaluation metrics (MSE, RMSE, MAE, R², accuracy, log loss)
//   - dataset: NumPy .npy matrix interchange
//   - core/model: estimator interfaces and fitted-state tracking
//   - core/parallel: chunked goroutine fan-out used across the library
//   - pkg/errors: structured, typed errors with stack traces
//   - pkg/log: structured logging backed by zerolog
package edgeboost
