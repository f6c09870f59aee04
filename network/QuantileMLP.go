package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// QuantileMLP implements a multi-layered perceptron that predicts, for
// each action, the locations of a fixed number of quantiles of the
// return distribution. Given an environment with A actions and N
// quantiles, the network predicts A * N values per observation,
// reshaped so that the prediction node has shape
// [batch, actions, quantiles].
//
// The predicted quantile locations for an action are not ordered. Only
// their fixed midpoints τ_i = (i + 0.5)/N, which are constant for the
// lifetime of the network, carry the quantile identity.
type QuantileMLP interface {
	NeuralNet
	NumActions() int
	NumQuantiles() int
}

// quantileMLP implements QuantileMLP by reshaping the head of a
// multiHeadMLP
type quantileMLP struct {
	net          NeuralNet
	numActions   int
	numQuantiles int

	features    int
	hiddenSizes []int
	biases      []bool
	activations []*Activation
	init        G.InitWFn

	prediction *G.Node
	predVal    G.Value
}

// NewQuantileMLP creates and returns a new QuantileMLP predicting
// numQuantiles quantile locations for each of numActions actions. The
// graph parameter g is populated with the network. The hiddenSizes,
// biases, activations, and init parameters configure the hidden layers
// as in NewMultiHeadMLP; a final linear layer producing
// numActions * numQuantiles values is always added.
func NewQuantileMLP(features, batch, numActions, numQuantiles int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (QuantileMLP, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newquantilemlp: actions must be positive "+
			"\n\twant(>0) \n\thave(%v)", numActions)
	}
	if numQuantiles < 1 {
		return nil, fmt.Errorf("newquantilemlp: quantiles must be positive "+
			"\n\twant(>0) \n\thave(%v)", numQuantiles)
	}

	net, err := NewMultiHeadMLP(features, batch, numActions*numQuantiles, g,
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newquantilemlp: could not create network: %v",
			err)
	}

	q := &quantileMLP{
		net:          net,
		numActions:   numActions,
		numQuantiles: numQuantiles,
		features:     features,
		hiddenSizes:  hiddenSizes,
		biases:       biases,
		activations:  activations,
		init:         init,
	}
	if err := q.reshape(); err != nil {
		return nil, err
	}

	return q, nil
}

// reshape adds the [batch, actions, quantiles] view of the prediction
// head to the computational graph
func (q *quantileMLP) reshape() error {
	head := q.net.Prediction()[0]
	pred, err := G.Reshape(head, tensor.Shape{
		q.net.BatchSize(), q.numActions, q.numQuantiles,
	})
	if err != nil {
		return fmt.Errorf("reshape: could not reshape prediction: %v", err)
	}

	q.prediction = pred
	G.Read(q.prediction, &q.predVal)
	return nil
}

// NumActions returns the number of actions the network predicts
// quantiles for
func (q *quantileMLP) NumActions() int {
	return q.numActions
}

// NumQuantiles returns the number of quantiles predicted per action
func (q *quantileMLP) NumQuantiles() int {
	return q.numQuantiles
}

// Graph returns the computational graph of the quantileMLP
func (q *quantileMLP) Graph() *G.ExprGraph {
	return q.net.Graph()
}

// Clone clones a quantileMLP
func (q *quantileMLP) Clone() (NeuralNet, error) {
	return q.CloneWithBatch(q.BatchSize())
}

// CloneWithBatch clones a quantileMLP with a new input batch size.
// Weights are shared by value: the clone is initialized to the same
// weights as the original network.
func (q *quantileMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	clone, err := NewQuantileMLP(q.features, batchSize, q.numActions,
		q.numQuantiles, graph, q.hiddenSizes, q.biases, q.init, q.activations)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}

	if err := clone.Set(q); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy weights: %v",
			err)
	}
	return clone, nil
}

func (q *quantileMLP) BatchSize() int {
	return q.net.BatchSize()
}

func (q *quantileMLP) Features() int {
	return q.net.Features()
}

func (q *quantileMLP) Outputs() int {
	return q.net.Outputs()
}

func (q *quantileMLP) SetInput(input []float64) error {
	return q.net.SetInput(input)
}

func (q *quantileMLP) Set(source NeuralNet) error {
	return q.net.Set(source)
}

func (q *quantileMLP) Polyak(source NeuralNet, tau float64) error {
	return q.net.Polyak(source, tau)
}

func (q *quantileMLP) Learnables() G.Nodes {
	return q.net.Learnables()
}

func (q *quantileMLP) Model() []G.ValueGrad {
	return q.net.Model()
}

// Output returns the quantile predictions of the last run of the
// computational graph with shape [batch, actions, quantiles]
func (q *quantileMLP) Output() []G.Value {
	return []G.Value{q.predVal}
}

// Prediction returns the node storing the [batch, actions, quantiles]
// quantile predictions
func (q *quantileMLP) Prediction() []*G.Node {
	return []*G.Node{q.prediction}
}
