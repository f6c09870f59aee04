package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Transition packages together a single environmental transition
// (S, A, R, S', done). The Done flag records whether the transition
// ended the episode: value backups must carry zero future value across
// a terminal transition.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	NextState mat.Vector
	Done      bool
}

// NewTransition packages an environmental transition from the timestep
// at which the action was taken and the timestep the action led to.
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		NextState: nextStep.Observation,
		Done:      nextStep.Last(),
	}
}
