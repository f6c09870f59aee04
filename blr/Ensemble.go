package blr

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Ensemble maintains one BLR posterior per discrete action, indexed by
// action. The fixed-size layout structurally enforces the one-posterior-
// per-action invariant.
type Ensemble struct {
	posteriors []*BLR
	features   int
}

// NewEnsemble creates and returns a new Ensemble of numActions BLR
// posteriors, each set to the prior (w = 0, Σ = τ⁻¹·I).
func NewEnsemble(numActions, features int, tau,
	sigmaE float64) (*Ensemble, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newensemble: actions must be positive "+
			"\n\twant(>0) \n\thave(%v)", numActions)
	}

	posteriors := make([]*BLR, numActions)
	for a := range posteriors {
		posterior, err := New(features, tau, sigmaE)
		if err != nil {
			return nil, fmt.Errorf("newensemble: %v", err)
		}
		posteriors[a] = posterior
	}

	return &Ensemble{posteriors: posteriors, features: features}, nil
}

// NumActions returns the number of per-action posteriors
func (e *Ensemble) NumActions() int {
	return len(e.posteriors)
}

// Features returns the feature dimension shared by all posteriors
func (e *Ensemble) Features() int {
	return e.features
}

// Posterior returns the posterior for an action
func (e *Ensemble) Posterior(action int) (*BLR, error) {
	if action < 0 || action >= len(e.posteriors) {
		msg := "posterior: action out of range\n\twant[0, %v)\n\thave(%v)"
		return nil, fmt.Errorf(msg, len(e.posteriors), action)
	}
	return e.posteriors[action], nil
}

// Predict returns the posterior-predictive mean and variance of each
// action's posterior for each row of the feature batch phi. The
// returned matrices have shape [batch, actions].
func (e *Ensemble) Predict(phi mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	rows, _ := phi.Dims()
	means := mat.NewDense(rows, len(e.posteriors), nil)
	variances := mat.NewDense(rows, len(e.posteriors), nil)

	for a, posterior := range e.posteriors {
		mean, variance, err := posterior.Predict(phi)
		if err != nil {
			return nil, nil, fmt.Errorf("predict: action %v: %v", a, err)
		}
		means.SetCol(a, mean.RawVector().Data)
		variances.SetCol(a, variance.RawVector().Data)
	}

	return means, variances, nil
}

// Update performs the closed-form Bayesian update of every posterior
// from a single batch. For each action, the rows of phi and targets
// whose action differs are masked to zero, so each posterior trains on
// only its own examples. The actions vector holds the action index
// taken at each row.
func (e *Ensemble) Update(phi *mat.Dense, targets mat.Vector,
	actions []int) error {
	rows, cols := phi.Dims()
	if cols != e.features {
		msg := "update: invalid feature dimension\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, e.features, cols)
	}
	if targets.Len() != rows || len(actions) != rows {
		msg := "update: mismatched batch sizes\n\twant(%v)" +
			"\n\thave(targets %v, actions %v)"
		return fmt.Errorf(msg, rows, targets.Len(), len(actions))
	}
	for _, action := range actions {
		if action < 0 || action >= len(e.posteriors) {
			msg := "update: action out of range\n\twant[0, %v)\n\thave(%v)"
			return fmt.Errorf(msg, len(e.posteriors), action)
		}
	}

	for a, posterior := range e.posteriors {
		masked := mat.NewDense(rows, cols, nil)
		y := mat.NewVecDense(rows, nil)

		for i := 0; i < rows; i++ {
			if actions[i] != a {
				continue
			}
			for j := 0; j < cols; j++ {
				masked.Set(i, j, phi.At(i, j))
			}
			y.SetVec(i, targets.AtVec(i))
		}

		if err := posterior.Update(masked, y); err != nil {
			return fmt.Errorf("update: action %v: %v", a, err)
		}
	}

	return nil
}

// Reset restores every posterior to the prior
func (e *Ensemble) Reset() {
	for _, posterior := range e.posteriors {
		posterior.Reset()
	}
}

// Sample draws one weight vector from each action's posterior
func (e *Ensemble) Sample(src rand.Source) ([]*mat.VecDense, error) {
	samples := make([]*mat.VecDense, len(e.posteriors))
	for a, posterior := range e.posteriors {
		sample, err := posterior.Sample(src)
		if err != nil {
			return nil, fmt.Errorf("sample: action %v: %v", a, err)
		}
		samples[a] = sample
	}
	return samples, nil
}

// Means returns a copy of each action's posterior mean weight vector
func (e *Ensemble) Means() []*mat.VecDense {
	means := make([]*mat.VecDense, len(e.posteriors))
	for a, posterior := range e.posteriors {
		means[a] = posterior.Weights()
	}
	return means
}

// CopyFrom overwrites every posterior wholesale with the corresponding
// posterior of another Ensemble. No storage is shared afterwards.
func (e *Ensemble) CopyFrom(source *Ensemble) error {
	if source.NumActions() != e.NumActions() {
		msg := "copyfrom: mismatched action count\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, e.NumActions(), source.NumActions())
	}
	if source.Features() != e.features {
		msg := "copyfrom: mismatched feature dimension" +
			"\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, e.features, source.Features())
	}

	for a, posterior := range e.posteriors {
		src := source.posteriors[a]
		if err := posterior.SetPosterior(src.Weights(), src.Cov()); err != nil {
			return fmt.Errorf("copyfrom: action %v: %v", a, err)
		}
	}
	return nil
}
