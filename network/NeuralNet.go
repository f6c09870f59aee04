// Package network implements neural network function approximators
// using Gorgonia.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network function approximator. A
// NeuralNet only populates a gorgonia.ExprGraph with the network
// function. It does not have a VM of its own: an external VM should be
// used to run the computational graph of the network. The VM should
// always be run before accessing the network Output().
type NeuralNet interface {
	// Graph returns the computational graph that the network populates
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph
	// with a new input batch size
	CloneWithBatch(int) (NeuralNet, error)

	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the input node before running the
	// forward pass
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network
	Set(NeuralNet) error

	// Polyak sets the weights of the network to a Polyak average
	// between its existing weights and those of another network
	Polyak(NeuralNet, float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value of the prediction node after the last
	// run of the computational graph
	Output() []G.Value

	// Prediction returns the nodes of the computational graph that
	// store the output of the network
	Prediction() []*G.Node
}
