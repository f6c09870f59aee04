// Package agent defines the interfaces of value-estimation agents
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/godqn/timestep"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Agents usually have a
// behaviour and a target policy. For a given agent, the Policy and
// Learner should share weights so that any changes the Learner makes
// to the weights are reflected in the actions the Policy chooses.
type Policy interface {
	SelectAction(t timestep.TimeStep) (*mat.VecDense, error)
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// ValueModel is a value-estimation agent: it exposes its per-action
// value estimates, the loss of its last update, and an explicit
// target-synchronization trigger. The trigger frequency is owned by
// the caller; target parameters are never mutated by the optimizer.
type ValueModel interface {
	Agent

	// Estimate returns the agent-side value estimate of each action
	// in the given observation
	Estimate(obs mat.Vector) (*mat.VecDense, error)

	// Loss returns the scalar loss computed by the last Step()
	Loss() float64

	// SyncTarget copies the trained parameters into the frozen target
	SyncTarget() error
}
