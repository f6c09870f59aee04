package qrdqn

import (
	"fmt"

	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/initwfn"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/solver"
)

// Config implements a configuration for a QRDQN agent
type Config struct {
	PolicyLayers []int                 // Hidden layer sizes
	Biases       []bool                // Whether each hidden layer has a bias
	Activations  []*network.Activation // Activation of each hidden layer
	InitWFn      *initwfn.InitWFn      // Weight initialization
	Solver       *solver.Solver        // Gradient step algorithm

	Replay expreplay.Config

	// Distributional value parameters
	NumQuantiles int     // Number of quantile locations per action
	HuberOrder   float64 // Huber interval k; 0 selects the pure pinball loss
	Gamma        float64 // Discount factor

	// Per-step probability of selecting a random action when training
	Epsilon float64

	// Whether the z-variance diagnostic is normalized so that the mean
	// variance across actions is 1
	NormalizeZVariance bool

	// Target network update schedule
	Tau                  float64 // Polyak averaging constant
	TargetUpdateInterval int     // Steps between target updates
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.Replay.SampleSize
}

// Validate checks the validity of the Config, returning an error if
// any configuration variable would produce an invalid agent
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Biases) {
		msg := "invalid number of biases\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, len(c.PolicyLayers), len(c.Biases))
	}
	if len(c.PolicyLayers) != len(c.Activations) {
		msg := "invalid number of activations\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, len(c.PolicyLayers), len(c.Activations))
	}

	if c.NumQuantiles < 1 {
		msg := "number of quantiles must be positive\n\twant(>0)\n\thave(%v)"
		return fmt.Errorf(msg, c.NumQuantiles)
	}
	if c.HuberOrder < 0 {
		msg := "huber interval must be non-negative\n\twant(≥0)\n\thave(%v)"
		return fmt.Errorf(msg, c.HuberOrder)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		msg := "discount must be in [0, 1]\n\thave(%v)"
		return fmt.Errorf(msg, c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		msg := "epsilon must be in [0, 1]\n\thave(%v)"
		return fmt.Errorf(msg, c.Epsilon)
	}

	if c.Tau <= 0 || c.Tau > 1 {
		msg := "polyak averaging constant must be in (0, 1]\n\thave(%v)"
		return fmt.Errorf(msg, c.Tau)
	}
	if c.TargetUpdateInterval < 1 {
		msg := "target update interval must be positive\n\twant(>0)" +
			"\n\thave(%v)"
		return fmt.Errorf(msg, c.TargetUpdateInterval)
	}

	if c.Solver == nil {
		return fmt.Errorf("no solver set")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("no weight initialization set")
	}
	if c.BatchSize() < 1 {
		msg := "batch size must be positive\n\twant(>0)\n\thave(%v)"
		return fmt.Errorf(msg, c.BatchSize())
	}

	return nil
}
