package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ValueFeatureMLP implements a multi-layered perceptron that predicts
// one value per action through a final linear head, while also
// exposing the activations of its last hidden layer as a feature
// vector. The feature vector is the representation a downstream
// Bayesian linear regression is fit on.
//
// Prediction()[0] and Output()[0] hold the action values with shape
// [batch, actions]; Prediction()[1] and Output()[1] hold the features
// with shape [batch, featureSize].
type ValueFeatureMLP interface {
	NeuralNet
	NumActions() int
	FeatureSize() int
}

// valueFeatureMLP implements ValueFeatureMLP
type valueFeatureMLP struct {
	g      *G.ExprGraph
	layers []Layer // Trunk and final linear head
	input  *G.Node

	numActions  int
	featureSize int
	numInputs   int
	batchSize   int

	hiddenSizes []int
	biases      []bool
	activations []*Activation
	init        G.InitWFn

	learnables G.Nodes
	model      []G.ValueGrad

	phi    *G.Node
	phiVal G.Value

	prediction *G.Node
	predVal    G.Value
}

// NewValueFeatureMLP creates and returns a new ValueFeatureMLP
// predicting one value for each of numActions actions. The last entry
// of hiddenSizes is the feature layer; at least one hidden layer is
// required. A final linear head from the feature layer to the action
// values is always added.
func NewValueFeatureMLP(features, batch, numActions int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (ValueFeatureMLP, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newvaluefeaturemlp: actions must be "+
			"positive \n\twant(>0) \n\thave(%v)", numActions)
	}
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newvaluefeaturemlp: at least one hidden " +
			"layer required")
	}
	if len(hiddenSizes) != len(activations) {
		msg := "newvaluefeaturemlp: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newvaluefeaturemlp: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	featureSize := hiddenSizes[len(hiddenSizes)-1]
	trunk := addfcLayers(g, hiddenSizes, biases, activations, init, features,
		"", "")
	head := addfcLayers(g, []int{numActions}, []bool{true},
		[]*Activation{Identity()}, init, featureSize, "head", "")

	network := valueFeatureMLP{
		g:           g,
		layers:      append(trunk, head...),
		input:       input,
		numActions:  numActions,
		featureSize: featureSize,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
		init:        init,
	}
	if err := network.fwd(input); err != nil {
		msg := "newvaluefeaturemlp: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// fwd performs the forward pass, reading both the feature layer and
// the action-value head
func (v *valueFeatureMLP) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range v.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return fmt.Errorf(msg, i, err)
		}

		// The layer before the head is the feature layer
		if i == len(v.layers)-2 {
			v.phi = pred
			G.Read(v.phi, &v.phiVal)
		}
	}

	v.prediction = pred
	G.Read(v.prediction, &v.predVal)
	return nil
}

// NumActions returns the number of actions the network predicts values
// for
func (v *valueFeatureMLP) NumActions() int {
	return v.numActions
}

// FeatureSize returns the size of the predicted feature vector
func (v *valueFeatureMLP) FeatureSize() int {
	return v.featureSize
}

// Graph returns the computational graph of the valueFeatureMLP
func (v *valueFeatureMLP) Graph() *G.ExprGraph {
	return v.g
}

// Clone clones a valueFeatureMLP
func (v *valueFeatureMLP) Clone() (NeuralNet, error) {
	return v.CloneWithBatch(v.batchSize)
}

// CloneWithBatch clones a valueFeatureMLP with a new input batch size.
// Weights are shared by value: the clone is initialized to the same
// weights as the original network.
func (v *valueFeatureMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	clone, err := NewValueFeatureMLP(v.numInputs, batchSize, v.numActions,
		graph, v.hiddenSizes, v.biases, v.init, v.activations)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}

	if err := clone.Set(v); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy weights: %v",
			err)
	}
	return clone, nil
}

func (v *valueFeatureMLP) BatchSize() int {
	return v.batchSize
}

func (v *valueFeatureMLP) Features() int {
	return v.numInputs
}

func (v *valueFeatureMLP) Outputs() int {
	return v.numActions
}

// SetInput sets the value of the input node before running the forward
// pass
func (v *valueFeatureMLP) SetInput(input []float64) error {
	if len(input) != v.numInputs*v.batchSize {
		msg := "setinput: invalid number of inputs\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, v.numInputs*v.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(v.input.Shape()...),
	)
	return G.Let(v.input, inputTensor)
}

// Set sets the weights of a valueFeatureMLP to be equal to the weights
// of another NeuralNet
func (dest *valueFeatureMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of a valueFeatureMLP to be a polyak average
// between its existing weights and the weights of another NeuralNet
func (dest *valueFeatureMLP) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a valueFeatureMLP
func (v *valueFeatureMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if v.learnables == nil {
		v.learnables = computeLearnables(v.layers)
	}
	return v.learnables
}

// Model returns the learnable nodes with their gradients
func (v *valueFeatureMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if v.model == nil {
		v.model = computeModel(v.Learnables())
	}
	return v.model
}

// Output returns the action values and features of the last run of
// the computational graph
func (v *valueFeatureMLP) Output() []G.Value {
	return []G.Value{v.predVal, v.phiVal}
}

// Prediction returns the nodes storing the action values and the
// features
func (v *valueFeatureMLP) Prediction() []*G.Node {
	return []*G.Node{v.prediction, v.phi}
}
