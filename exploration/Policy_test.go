package exploration

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestGreedy checks that Greedy selects the action of maximal mean
func TestGreedy(t *testing.T) {
	policy := NewGreedy(13)

	mean := mat.NewVecDense(3, []float64{1.0, 3.0, 2.0})
	variance := mat.NewVecDense(3, []float64{1.0, 1.0, 1.0})

	action, err := policy.SelectAction(mean, variance)
	if err != nil {
		t.Fatal(err)
	}
	if action != 1 {
		t.Errorf("greedy should select action 1, got %v", action)
	}
}

// TestUCB checks that UCB can prefer an uncertain action over one
// with a higher mean
func TestUCB(t *testing.T) {
	policy, err := NewUCB(2.0, 13)
	if err != nil {
		t.Fatal(err)
	}

	mean := mat.NewVecDense(2, []float64{1.0, 0.9})
	variance := mat.NewVecDense(2, []float64{0.01, 1.0})

	// Upper bounds are 1.2 and 2.9
	action, err := policy.SelectAction(mean, variance)
	if err != nil {
		t.Fatal(err)
	}
	if action != 1 {
		t.Errorf("ucb should select the uncertain action 1, got %v", action)
	}

	if _, err := NewUCB(-1.0, 13); err == nil {
		t.Error("newucb: expected error for negative uncertainty scale")
	}
}

// TestIDS checks the information-directed score against hand-computed
// values: a high-regret action with high information value can still
// minimize the score
func TestIDS(t *testing.T) {
	policy, err := NewIDS(1.0, 1.0, 13)
	if err != nil {
		t.Fatal(err)
	}

	mean := mat.NewVecDense(2, []float64{1.0, 1.0})
	variance := mat.NewVecDense(2, []float64{0.25, 4.0})

	regret, infoGain, scores, err := policy.Scores(mean, variance)
	if err != nil {
		t.Fatal(err)
	}

	// Upper bounds are 1.5 and 3; regret against the best upper bound
	wantRegret := []float64{2.5, 4.0}
	for a, want := range wantRegret {
		if math.Abs(regret[a]-want) > 1e-12 {
			t.Errorf("action %v: regret should be %v, got %v", a, want,
				regret[a])
		}
	}

	wantInfo := []float64{
		math.Log(1.25) + 1e-5,
		math.Log(5.0) + 1e-5,
	}
	for a, want := range wantInfo {
		if math.Abs(infoGain[a]-want) > 1e-12 {
			t.Errorf("action %v: information gain should be %v, got %v", a,
				want, infoGain[a])
		}
	}

	if scores[1] >= scores[0] {
		t.Errorf("the informative action should minimize the score: %v",
			scores)
	}

	action, err := policy.SelectAction(mean, variance)
	if err != nil {
		t.Fatal(err)
	}
	if action != 1 {
		t.Errorf("ids should select action 1, got %v", action)
	}
}

// TestIDSValidation ensures invalid hyperparameters are rejected
func TestIDSValidation(t *testing.T) {
	if _, err := NewIDS(-1.0, 1.0, 13); err == nil {
		t.Error("newids: expected error for negative uncertainty scale")
	}
	if _, err := NewIDS(1.0, 0.0, 13); err == nil {
		t.Error("newids: expected error for non-positive noise level")
	}
}

// TestInvalidVariance ensures every policy rejects non-positive and
// non-finite variances instead of selecting from corrupt scores
func TestInvalidVariance(t *testing.T) {
	greedy := NewGreedy(13)
	ucb, err := NewUCB(1.0, 13)
	if err != nil {
		t.Fatal(err)
	}
	ids, err := NewIDS(1.0, 1.0, 13)
	if err != nil {
		t.Fatal(err)
	}
	policies := []Policy{greedy, ucb, ids}

	mean := mat.NewVecDense(2, []float64{1.0, 2.0})
	invalid := []*mat.VecDense{
		mat.NewVecDense(2, []float64{1.0, 0.0}),
		mat.NewVecDense(2, []float64{1.0, -1.0}),
		mat.NewVecDense(2, []float64{1.0, math.NaN()}),
		mat.NewVecDense(2, []float64{1.0, math.Inf(1)}),
	}

	for i, policy := range policies {
		for j, variance := range invalid {
			if _, err := policy.SelectAction(mean, variance); err == nil {
				t.Errorf("policy %v: expected error for invalid variance %v",
					i, j)
			}
		}
	}
}

// TestMismatchedLengths ensures mean and variance lengths must agree
func TestMismatchedLengths(t *testing.T) {
	policy := NewGreedy(13)

	mean := mat.NewVecDense(3, []float64{1.0, 2.0, 3.0})
	variance := mat.NewVecDense(2, []float64{1.0, 1.0})

	if _, err := policy.SelectAction(mean, variance); err == nil {
		t.Error("expected error for mismatched mean and variance lengths")
	}
}
