package network

import (
	"testing"

	G "gorgonia.org/gorgonia"
)

// TestNewQuantileMLP checks construction and the dimension accessors
func TestNewQuantileMLP(t *testing.T) {
	g := G.NewGraph()
	net, err := NewQuantileMLP(4, 2, 3, 8, g, []int{16}, []bool{true},
		G.GlorotU(1.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatal(err)
	}

	if net.NumActions() != 3 {
		t.Errorf("network should predict for 3 actions, got %v",
			net.NumActions())
	}
	if net.NumQuantiles() != 8 {
		t.Errorf("network should predict 8 quantiles, got %v",
			net.NumQuantiles())
	}
	if net.Outputs() != 24 {
		t.Errorf("network should have 24 outputs, got %v", net.Outputs())
	}
	if net.BatchSize() != 2 {
		t.Errorf("network should have batch size 2, got %v", net.BatchSize())
	}
	if net.Features() != 4 {
		t.Errorf("network should have 4 input features, got %v",
			net.Features())
	}

	// The prediction node is the [batch, actions, quantiles] view
	shape := net.Prediction()[0].Shape()
	if len(shape) != 3 || shape[0] != 2 || shape[1] != 3 || shape[2] != 8 {
		t.Errorf("prediction shape should be (2, 3, 8), got %v", shape)
	}
}

// TestNewQuantileMLPValidation checks rejection of invalid dimensions
func TestNewQuantileMLPValidation(t *testing.T) {
	g := G.NewGraph()
	_, err := NewQuantileMLP(4, 1, 0, 8, g, []int{16}, []bool{true},
		G.GlorotU(1.0), []*Activation{ReLU()})
	if err == nil {
		t.Error("expected error for non-positive action count")
	}

	g = G.NewGraph()
	_, err = NewQuantileMLP(4, 1, 3, 0, g, []int{16}, []bool{true},
		G.GlorotU(1.0), []*Activation{ReLU()})
	if err == nil {
		t.Error("expected error for non-positive quantile count")
	}

	g = G.NewGraph()
	_, err = NewQuantileMLP(4, 1, 3, 8, g, []int{16}, []bool{true},
		G.GlorotU(1.0), []*Activation{ReLU(), TanH()})
	if err == nil {
		t.Error("expected error for mismatched activations")
	}
}

// TestQuantileMLPCloneWithBatch checks that clones keep the quantile
// layout with a new batch size
func TestQuantileMLPCloneWithBatch(t *testing.T) {
	g := G.NewGraph()
	net, err := NewQuantileMLP(4, 1, 2, 4, g, []int{8}, []bool{true},
		G.GlorotU(1.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatal(err)
	}

	cloned, err := net.CloneWithBatch(16)
	if err != nil {
		t.Fatal(err)
	}
	clone := cloned.(QuantileMLP)

	if clone.BatchSize() != 16 {
		t.Errorf("clone should have batch size 16, got %v",
			clone.BatchSize())
	}
	if clone.NumActions() != 2 || clone.NumQuantiles() != 4 {
		t.Error("clone should keep the action and quantile counts")
	}
	if clone.Graph() == net.Graph() {
		t.Error("clone should live on a new computational graph")
	}

	// The clone is initialized to the same weights
	for i, learnable := range clone.Learnables() {
		source := net.Learnables()[i]
		if learnable.Shape().TotalSize() != source.Shape().TotalSize() {
			t.Errorf("learnable %v: mismatched shapes %v and %v", i,
				learnable.Shape(), source.Shape())
		}
	}
}

// TestNewValueFeatureMLP checks construction and the feature layer
// accessors
func TestNewValueFeatureMLP(t *testing.T) {
	g := G.NewGraph()
	net, err := NewValueFeatureMLP(4, 2, 3, g, []int{16, 8},
		[]bool{true, true}, G.GlorotU(1.0),
		[]*Activation{ReLU(), ReLU()})
	if err != nil {
		t.Fatal(err)
	}

	if net.NumActions() != 3 {
		t.Errorf("network should predict for 3 actions, got %v",
			net.NumActions())
	}
	if net.FeatureSize() != 8 {
		t.Errorf("feature layer should have size 8, got %v",
			net.FeatureSize())
	}

	// Prediction holds the action values and the features
	if len(net.Prediction()) != 2 {
		t.Fatalf("expected 2 prediction nodes, got %v", len(net.Prediction()))
	}
	qShape := net.Prediction()[0].Shape()
	if len(qShape) != 2 || qShape[0] != 2 || qShape[1] != 3 {
		t.Errorf("value shape should be (2, 3), got %v", qShape)
	}
	phiShape := net.Prediction()[1].Shape()
	if len(phiShape) != 2 || phiShape[0] != 2 || phiShape[1] != 8 {
		t.Errorf("feature shape should be (2, 8), got %v", phiShape)
	}
}

// TestNewValueFeatureMLPValidation checks that a feature layer is
// required
func TestNewValueFeatureMLPValidation(t *testing.T) {
	g := G.NewGraph()
	_, err := NewValueFeatureMLP(4, 1, 3, g, []int{}, []bool{},
		G.GlorotU(1.0), []*Activation{})
	if err == nil {
		t.Error("expected error for a network with no hidden layers")
	}
}
