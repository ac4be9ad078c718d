package gbdt

import (
	"math"
	"testing"
)

// makeHistogram builds a single-feature set with one bin per entry.
func makeHistogram(bins ...binStats) histogramSet {
	h := make(histogram, len(bins))
	copy(h, bins)
	return histogramSet{h}
}

func TestFindBestSplitSeparatesGradientSigns(t *testing.T) {
	// Negative gradients in bin 0, positive in bin 1: cutting between them
	// is the only candidate and clearly profitable.
	hists := makeHistogram(
		binStats{SumGradients: -2, SumHessians: 2, Count: 2},
		binStats{SumGradients: 2, SumHessians: 2, Count: 2},
	)

	s := newSplitter(0, 1, 0)
	split, ok := s.findBestSplit(hists, 0, 4, 4)
	if !ok {
		t.Fatal("findBestSplit found no split")
	}
	if split.FeatureIdx != 0 || split.BinThreshold != 0 {
		t.Errorf("split at (feature %d, bin %d), want (0, 0)", split.FeatureIdx, split.BinThreshold)
	}

	// 0.5 * ((-2)^2/2 + 2^2/2 - 0) = 2
	if math.Abs(split.Gain-2) > 1e-12 {
		t.Errorf("gain = %v, want 2", split.Gain)
	}
	if split.LeftCount != 2 || split.RightCount != 2 {
		t.Errorf("counts = (%d, %d), want (2, 2)", split.LeftCount, split.RightCount)
	}
}

func TestFindBestSplitRespectsMinSamplesLeaf(t *testing.T) {
	hists := makeHistogram(
		binStats{SumGradients: -5, SumHessians: 1, Count: 1},
		binStats{SumGradients: 5, SumHessians: 3, Count: 3},
	)

	// The only cut-point leaves one sample on the left.
	s := newSplitter(0, 2, 0)
	if _, ok := s.findBestSplit(hists, 0, 4, 4); ok {
		t.Error("split accepted with undersized left child")
	}

	// Nodes below twice the minimum can never produce two valid leaves.
	s = newSplitter(0, 3, 0)
	if _, ok := s.findBestSplit(hists, 0, 4, 4); ok {
		t.Error("split accepted on a node smaller than 2*min_samples_leaf")
	}
}

func TestFindBestSplitRequiresPositiveGain(t *testing.T) {
	// Identical gradient distribution in both bins: gain is exactly zero.
	hists := makeHistogram(
		binStats{SumGradients: 1, SumHessians: 1, Count: 2},
		binStats{SumGradients: 1, SumHessians: 1, Count: 2},
	)

	s := newSplitter(0, 1, 0)
	if _, ok := s.findBestSplit(hists, 2, 2, 4); ok {
		t.Error("accepted a zero-gain split")
	}
}

func TestFindBestSplitMinGainThreshold(t *testing.T) {
	hists := makeHistogram(
		binStats{SumGradients: -2, SumHessians: 2, Count: 2},
		binStats{SumGradients: 2, SumHessians: 2, Count: 2},
	)

	s := newSplitter(0, 1, 1.9)
	if _, ok := s.findBestSplit(hists, 0, 4, 4); !ok {
		t.Error("rejected a split whose gain exceeds the threshold")
	}

	s = newSplitter(0, 1, 2.0)
	if _, ok := s.findBestSplit(hists, 0, 4, 4); ok {
		t.Error("accepted a split whose gain does not exceed the threshold")
	}
}

func TestFindBestSplitTieBreaksOnLowestFeature(t *testing.T) {
	// Two features with identical histograms produce identical best gains;
	// the lower feature index must win.
	h := histogram{
		{SumGradients: -2, SumHessians: 2, Count: 2},
		{SumGradients: 2, SumHessians: 2, Count: 2},
	}
	hists := histogramSet{
		append(histogram(nil), h...),
		append(histogram(nil), h...),
	}

	s := newSplitter(0, 1, 0)
	for trial := 0; trial < 20; trial++ {
		split, ok := s.findBestSplit(hists, 0, 4, 4)
		if !ok {
			t.Fatal("findBestSplit found no split")
		}
		if split.FeatureIdx != 0 {
			t.Fatalf("trial %d: tie resolved to feature %d, want 0", trial, split.FeatureIdx)
		}
	}
}

func TestScanFeatureTieBreaksOnLowestBin(t *testing.T) {
	// Symmetric three-bin layout: cutting after bin 0 and after bin 1
	// yield the same gain. The lower bin must win.
	hists := makeHistogram(
		binStats{SumGradients: -2, SumHessians: 1, Count: 2},
		binStats{SumGradients: 0, SumHessians: 1, Count: 2},
		binStats{SumGradients: 2, SumHessians: 1, Count: 2},
	)

	s := newSplitter(0, 1, 0)
	split, ok := s.findBestSplit(hists, 0, 3, 6)
	if !ok {
		t.Fatal("findBestSplit found no split")
	}
	if split.BinThreshold != 0 {
		t.Errorf("tie resolved to bin %d, want 0", split.BinThreshold)
	}
}

func TestFindBestSplitL2Regularization(t *testing.T) {
	hists := makeHistogram(
		binStats{SumGradients: -2, SumHessians: 2, Count: 2},
		binStats{SumGradients: 2, SumHessians: 2, Count: 2},
	)

	unreg := newSplitter(0, 1, 0)
	reg := newSplitter(10, 1, 0)

	u, _ := unreg.findBestSplit(hists, 0, 4, 4)
	r, ok := reg.findBestSplit(hists, 0, 4, 4)
	if !ok {
		t.Fatal("regularized splitter found no split")
	}
	if r.Gain >= u.Gain {
		t.Errorf("regularized gain %v not below unregularized %v", r.Gain, u.Gain)
	}
}

func TestLeafValue(t *testing.T) {
	tests := []struct {
		name       string
		grad, hess float64
		lambda     float64
		want       float64
	}{
		{"newton step", 4, 2, 0, -2},
		{"regularized", 4, 2, 2, -1},
		{"zero gradient", 0, 5, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := leafValue(tt.grad, tt.hess, tt.lambda)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("leafValue(%v, %v, %v) = %v, want %v", tt.grad, tt.hess, tt.lambda, got, tt.want)
			}
		})
	}
}
