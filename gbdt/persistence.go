package gbdt

import (
	"encoding/json"
	"io"
	"os"

	"github.com/edgeml/edgeboost/pkg/errors"
	"github.com/edgeml/edgeboost/pkg/log"
)

// modelFormatVersion guards the serialized layout. Bump on incompatible
// changes.
const modelFormatVersion = 1

// ensembleFile is the on-disk form of a fitted GradientBoostingMachine. Bin
// edges travel with the trees so a loaded model can quantize raw input
// exactly as the training run did.
type ensembleFile struct {
	FormatVersion int         `json:"format_version"`
	Loss          string      `json:"loss"`
	NumClasses    int         `json:"num_classes"`
	NumFeatures   int         `json:"num_features"`
	MaxBins       int         `json:"max_bins"`
	LearningRate  float64     `json:"learning_rate"`
	Baseline      []float64   `json:"baseline"`
	BinEdges      [][]float64 `json:"bin_edges"`
	Trees         [][][]Node  `json:"trees"`
	TrainScores   []float64   `json:"train_scores"`
	ValidScores   []float64   `json:"valid_scores,omitempty"`
}

// Save writes the fitted ensemble to w as JSON.
func (gbm *GradientBoostingMachine) Save(w io.Writer) error {
	if !gbm.fitted {
		return errors.NewNotFittedError("GradientBoostingMachine", "Save")
	}

	file := ensembleFile{
		FormatVersion: modelFormatVersion,
		Loss:          gbm.loss.Name(),
		NumClasses:    gbm.cfg.NumClasses,
		NumFeatures:   gbm.numFeatures,
		MaxBins:       gbm.cfg.MaxBins,
		LearningRate:  gbm.cfg.LearningRate,
		Baseline:      gbm.baseline,
		BinEdges:      gbm.mapper.BinEdges(),
		TrainScores:   gbm.trainScores,
		ValidScores:   gbm.validScores,
	}
	file.Trees = make([][][]Node, len(gbm.trees))
	for i, round := range gbm.trees {
		file.Trees[i] = make([][]Node, len(round))
		for k, tree := range round {
			file.Trees[i][k] = tree.Nodes()
		}
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&file); err != nil {
		return errors.Wrap(err, "encoding ensemble")
	}
	return nil
}

// SaveFile writes the fitted ensemble to the given path.
func (gbm *GradientBoostingMachine) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating model file")
	}
	defer f.Close()

	if err := gbm.Save(f); err != nil {
		return err
	}
	return errors.Wrap(f.Close(), "closing model file")
}

// Load reads a serialized ensemble from r and reconstructs a fitted
// GradientBoostingMachine. The loaded model predicts identically to the one
// that was saved; it cannot be trained further.
func Load(r io.Reader) (*GradientBoostingMachine, error) {
	var file ensembleFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "decoding ensemble")
	}
	if file.FormatVersion != modelFormatVersion {
		return nil, errors.NewValidationError("format_version",
			"unsupported model format version", file.FormatVersion)
	}

	loss, err := NewLoss(file.Loss, file.NumClasses)
	if err != nil {
		return nil, err
	}
	if len(file.Baseline) != loss.NumOutputs() {
		return nil, errors.NewDimensionError("Load", loss.NumOutputs(), len(file.Baseline), 1)
	}
	if len(file.BinEdges) != file.NumFeatures {
		return nil, errors.NewDimensionError("Load", file.NumFeatures, len(file.BinEdges), 1)
	}

	mapper, err := RestoreBinMapper(file.MaxBins, file.BinEdges)
	if err != nil {
		return nil, err
	}

	trees := make([][]*TreePredictor, len(file.Trees))
	for i, round := range file.Trees {
		if len(round) != loss.NumOutputs() {
			return nil, errors.NewDimensionError("Load", loss.NumOutputs(), len(round), 1)
		}
		trees[i] = make([]*TreePredictor, len(round))
		for k, nodes := range round {
			tree, err := NewTreePredictor(nodes, loss.NumOutputs(), true)
			if err != nil {
				return nil, errors.Wrapf(err, "tree %d of round %d", k, i)
			}
			trees[i][k] = tree
		}
	}

	cfg := DefaultConfig()
	cfg.Loss = file.Loss
	cfg.NumClasses = file.NumClasses
	cfg.MaxBins = file.MaxBins
	cfg.LearningRate = file.LearningRate

	return &GradientBoostingMachine{
		cfg:         cfg,
		loss:        loss,
		mapper:      mapper,
		baseline:    file.Baseline,
		trees:       trees,
		trainScores: file.TrainScores,
		validScores: file.ValidScores,
		numFeatures: file.NumFeatures,
		fitted:      true,
		logger:      log.GetLoggerWithName("gbdt.trainer"),
	}, nil
}

// LoadFile reads a serialized ensemble from the given path.
func LoadFile(path string) (*GradientBoostingMachine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening model file")
	}
	defer f.Close()
	return Load(f)
}
