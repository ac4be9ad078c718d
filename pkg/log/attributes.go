package log

// Standard attribute keys used across edgeboost log output. Using shared
// constants keeps field names consistent between components so log queries
// do not have to account for spelling drift.
const (
	// ComponentKey names the emitting component, e.g. "gbdt.trainer".
	ComponentKey = "component"

	// OperationKey names the high-level operation, e.g. "fit", "predict".
	OperationKey = "operation"

	// IterationKey is the boosting round.
	IterationKey = "iteration"

	// SamplesKey and FeaturesKey describe input data shape.
	SamplesKey  = "n_samples"
	FeaturesKey = "n_features"

	// TrainLossKey and ValidLossKey carry per-round loss values.
	TrainLossKey = "train_loss"
	ValidLossKey = "valid_loss"

	// TreesKey is the number of trees grown so far.
	TreesKey = "n_trees"

	// LeavesKey is the leaf count of a grown tree.
	LeavesKey = "n_leaves"

	// DurationMsKey is elapsed wall time in milliseconds.
	DurationMsKey = "duration_ms"
)
