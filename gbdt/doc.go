// Package gbdt implements histogram-based gradient boosted decision trees
// for regression and classification.
//
// Training quantizes each feature into at most 256 bins up front, then grows
// trees leaf-wise on the uint8 bin codes: split search scans per-bin
// gradient/hessian histograms instead of sorted feature values, and each
// split derives one child's histograms by subtracting the other's from the
// parent's. Boosting adds trees fitted to the loss gradients at the current
// predictions, shrunk by the learning rate, with optional early stopping on
// a held-out split.
//
// Regressor and Classifier provide the high-level estimator surface;
// GradientBoostingMachine is the underlying training engine, and
// TreePredictor evaluates individual fitted trees over binned or raw
// numeric input.
package gbdt
