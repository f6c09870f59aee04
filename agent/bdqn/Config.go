package bdqn

import (
	"fmt"

	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/initwfn"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/solver"
)

// PolicyType describes the available exploration rules for a BDQN
// agent
type PolicyType string

// Available exploration rules
const (
	Greedy           PolicyType = "Greedy"
	ThompsonSampling PolicyType = "ThompsonSampling"
	UCB              PolicyType = "UCB"
	IDS              PolicyType = "IDS"
)

// Config implements a configuration for a BDQN agent
type Config struct {
	PolicyLayers []int                 // Hidden layer sizes
	Biases       []bool                // Whether each hidden layer has a bias
	Activations  []*network.Activation // Activation of each hidden layer
	InitWFn      *initwfn.InitWFn      // Weight initialization
	Solver       *solver.Solver        // Gradient step algorithm

	Replay expreplay.Config

	Gamma float64 // Discount factor

	// Bayesian linear regression parameters
	PriorPrecision    float64 // τ, precision of the zero-mean weight prior
	NoiseStdDev       float64 // σ_e, observation noise standard deviation
	BLRUpdateInterval int     // Steps between posterior updates

	// Exploration rule and its parameters
	Policy PolicyType
	NStds  float64 // Uncertainty scale for UCB and IDS
	Rho    float64 // Reference noise level for the IDS information gain

	// Target update schedule
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
	if len(c.PolicyLayers) == 0 {
		return fmt.Errorf("at least one hidden layer required for the " +
			"feature representation")
	}
	if len(c.PolicyLayers) != len(c.Biases) {
		msg := "invalid number of biases\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, len(c.PolicyLayers), len(c.Biases))
	}
	if len(c.PolicyLayers) != len(c.Activations) {
		msg := "invalid number of activations\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, len(c.PolicyLayers), len(c.Activations))
	}

	if c.Gamma < 0 || c.Gamma > 1 {
		msg := "discount must be in [0, 1]\n\thave(%v)"
		return fmt.Errorf(msg, c.Gamma)
	}
	if c.PriorPrecision <= 0 {
		msg := "prior precision must be positive\n\twant(>0)\n\thave(%v)"
		return fmt.Errorf(msg, c.PriorPrecision)
	}
	if c.NoiseStdDev <= 0 {
		msg := "observation noise must be positive\n\twant(>0)\n\thave(%v)"
		return fmt.Errorf(msg, c.NoiseStdDev)
	}
	if c.BLRUpdateInterval < 1 {
		msg := "posterior update interval must be positive\n\twant(>0)" +
			"\n\thave(%v)"
		return fmt.Errorf(msg, c.BLRUpdateInterval)
	}

	switch c.Policy {
	case Greedy, ThompsonSampling:
	case UCB:
		if c.NStds < 0 {
			msg := "uncertainty scale must be non-negative\n\twant(≥0)" +
				"\n\thave(%v)"
			return fmt.Errorf(msg, c.NStds)
		}
	case IDS:
		if c.NStds < 0 {
			msg := "uncertainty scale must be non-negative\n\twant(≥0)" +
				"\n\thave(%v)"
			return fmt.Errorf(msg, c.NStds)
		}
		if c.Rho <= 0 {
			msg := "reference noise level must be positive\n\twant(>0)" +
				"\n\thave(%v)"
			return fmt.Errorf(msg, c.Rho)
		}
	default:
		return fmt.Errorf("unknown exploration rule %v", c.Policy)
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
