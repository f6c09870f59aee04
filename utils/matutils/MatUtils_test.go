package matutils

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestMaxVec checks the argmax of a vector, including the
// first-occurrence rule for ties
func TestMaxVec(t *testing.T) {
	v := mat.NewVecDense(4, []float64{1.0, 3.0, 2.0, 3.0})
	if idx := MaxVec(v); idx != 1 {
		t.Errorf("max index should be 1, got %v", idx)
	}

	v = mat.NewVecDense(3, []float64{-2.0, -1.0, -3.0})
	if idx := MaxVec(v); idx != 1 {
		t.Errorf("max index should be 1, got %v", idx)
	}
}

// TestOneHot checks one-hot vector construction
func TestOneHot(t *testing.T) {
	v := OneHot(2, 4)
	for i := 0; i < v.Len(); i++ {
		want := 0.0
		if i == 2 {
			want = 1.0
		}
		if v.AtVec(i) != want {
			t.Errorf("index %v should be %v, got %v", i, want, v.AtVec(i))
		}
	}
}
