package floatutils

import (
	"math"
	"testing"
)

// TestMaxSlice checks the maximum value and that all tied indices are
// returned exactly once
func TestMaxSlice(t *testing.T) {
	max, indices := MaxSlice([]float64{3.0, 1.0, 3.0, 2.0})
	if max != 3.0 {
		t.Errorf("max should be 3, got %v", max)
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 2 {
		t.Errorf("tied indices should be [0 2], got %v", indices)
	}

	// A maximum at index 0 must not be duplicated
	_, indices = MaxSlice([]float64{5.0, 1.0})
	if len(indices) != 1 || indices[0] != 0 {
		t.Errorf("indices should be [0], got %v", indices)
	}
}

// TestMinSlice checks the minimum value and tied indices
func TestMinSlice(t *testing.T) {
	min, indices := MinSlice([]float64{2.0, 1.0, 1.0})
	if min != 1.0 {
		t.Errorf("min should be 1, got %v", min)
	}
	if len(indices) != 2 || indices[0] != 1 || indices[1] != 2 {
		t.Errorf("tied indices should be [1 2], got %v", indices)
	}

	_, indices = MinSlice([]float64{1.0, 2.0})
	if len(indices) != 1 || indices[0] != 0 {
		t.Errorf("indices should be [0], got %v", indices)
	}
}

// TestClip checks clipping to an interval
func TestClip(t *testing.T) {
	if v := Clip(5.0, -1.0, 1.0); v != 1.0 {
		t.Errorf("clip should return 1, got %v", v)
	}
	if v := Clip(-5.0, -1.0, 1.0); v != -1.0 {
		t.Errorf("clip should return -1, got %v", v)
	}
	if v := Clip(0.5, -1.0, 1.0); v != 0.5 {
		t.Errorf("clip should return 0.5, got %v", v)
	}
}

// TestMean checks the mean of a slice
func TestMean(t *testing.T) {
	if m := Mean([]float64{1.0, 2.0, 3.0}); m != 2.0 {
		t.Errorf("mean should be 2, got %v", m)
	}
}

// TestAllFinite checks detection of NaN and Inf values
func TestAllFinite(t *testing.T) {
	if !AllFinite([]float64{1.0, -2.0, 0.0}) {
		t.Error("finite values should be reported as finite")
	}
	if AllFinite([]float64{1.0, math.NaN()}) {
		t.Error("NaN should not be reported as finite")
	}
	if AllFinite([]float64{math.Inf(-1)}) {
		t.Error("Inf should not be reported as finite")
	}
}
