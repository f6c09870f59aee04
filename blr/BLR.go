// Package blr implements closed-form Bayesian linear regression for
// action-value estimation.
//
// A BLR maintains a Gaussian posterior N(w, Σ) over the weights of a
// linear map from features to a scalar value estimate. The posterior
// is updated by exact conjugate Bayesian inference, never by gradient
// descent, so the update is independent of any outer optimizer's step
// size or schedule.
package blr

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/samuelfneumann/godqn/utils/floatutils"
)

// BLR implements a Bayesian linear regression posterior over a weight
// vector of a fixed feature dimension.
//
// The prior is w = 0 with covariance τ⁻¹·I, where τ is the prior
// weight precision. Observations are assumed to carry Gaussian noise
// with standard deviation σ_e.
type BLR struct {
	features int
	tau      float64 // Prior weight precision
	sigmaE   float64 // Observation noise standard deviation

	w   *mat.VecDense
	cov *mat.SymDense
}

// New creates and returns a new BLR posterior set to its prior.
func New(features int, tau, sigmaE float64) (*BLR, error) {
	if features < 1 {
		return nil, fmt.Errorf("blr: feature dimension must be positive "+
			"\n\twant(>0) \n\thave(%v)", features)
	}
	if tau <= 0 {
		return nil, fmt.Errorf("blr: prior precision must be positive "+
			"\n\twant(>0) \n\thave(%v)", tau)
	}
	if sigmaE <= 0 {
		return nil, fmt.Errorf("blr: observation noise must be positive "+
			"\n\twant(>0) \n\thave(%v)", sigmaE)
	}

	b := &BLR{
		features: features,
		tau:      tau,
		sigmaE:   sigmaE,
	}
	b.Reset()
	return b, nil
}

// Features returns the feature dimension of the posterior
func (b *BLR) Features() int {
	return b.features
}

// Reset restores the posterior to its prior, w = 0 and Σ = τ⁻¹·I.
// Reset is idempotent.
func (b *BLR) Reset() {
	b.w = mat.NewVecDense(b.features, nil)
	b.cov = mat.NewSymDense(b.features, nil)
	for i := 0; i < b.features; i++ {
		b.cov.SetSym(i, i, 1.0/b.tau)
	}
}

// Predict returns the posterior-predictive mean Φ·w and variance
// diag(Φ·Σ·Φᵗ) for each row of the feature batch phi.
func (b *BLR) Predict(phi mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	rows, cols := phi.Dims()
	if cols != b.features {
		msg := "predict: invalid feature dimension\n\twant(%v)\n\thave(%v)"
		return nil, nil, fmt.Errorf(msg, b.features, cols)
	}

	mean := mat.NewVecDense(rows, nil)
	mean.MulVec(phi, b.w)

	// Φ·Σ, then the diagonal of (Φ·Σ)·Φᵗ row by row
	var phiCov mat.Dense
	phiCov.Mul(phi, b.cov)

	variance := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		v := 0.0
		for j := 0; j < cols; j++ {
			v += phiCov.At(i, j) * phi.At(i, j)
		}
		variance.SetVec(i, v)
	}

	if !floatutils.AllFinite(mean.RawVector().Data) ||
		!floatutils.AllFinite(variance.RawVector().Data) {
		return nil, nil, fmt.Errorf("predict: non-finite posterior " +
			"prediction")
	}

	return mean, variance, nil
}

// Update performs the closed-form conjugate Bayesian update of (w, Σ)
// given a feature batch X and targets y. Rows of X that are zeroed out
// contribute nothing to the update, so a batch masked to a single
// action trains the posterior on only that action's examples.
//
// The update is recursive: the current posterior acts as the prior.
// The posterior is only committed once the full batch has been
// applied; a numerical failure leaves the posterior unchanged.
func (b *BLR) Update(X mat.Matrix, y mat.Vector) error {
	rows, cols := X.Dims()
	if cols != b.features {
		msg := "update: invalid feature dimension\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, b.features, cols)
	}
	if y.Len() != rows {
		msg := "update: invalid number of targets\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, rows, y.Len())
	}

	likelihoodPrecision := 1.0 / (b.sigmaE * b.sigmaE)

	// Prior precision Λ₀ = Σ₀⁻¹
	var priorChol mat.Cholesky
	if ok := priorChol.Factorize(b.cov); !ok {
		return fmt.Errorf("update: posterior covariance is not positive " +
			"definite")
	}
	priorPrecision := mat.NewSymDense(b.features, nil)
	if err := priorChol.InverseTo(priorPrecision); err != nil {
		return fmt.Errorf("update: could not invert covariance: %v", err)
	}

	// Posterior precision Λₙ = Λ₀ + XᵗX / σ_e²
	precision := mat.NewSymDense(b.features, nil)
	precision.SymOuterK(likelihoodPrecision, X.T())
	precision.AddSym(precision, priorPrecision)

	var chol mat.Cholesky
	if ok := chol.Factorize(precision); !ok {
		return fmt.Errorf("update: updated precision is not positive " +
			"definite")
	}

	// Posterior mean solves Λₙ·wₙ = Λ₀·w₀ + Xᵗy / σ_e²
	rhs := mat.NewVecDense(b.features, nil)
	rhs.MulVec(priorPrecision, b.w)

	xty := mat.NewVecDense(b.features, nil)
	xty.MulVec(X.T(), y)
	rhs.AddScaledVec(rhs, likelihoodPrecision, xty)

	w := mat.NewVecDense(b.features, nil)
	if err := chol.SolveVecTo(w, rhs); err != nil {
		return fmt.Errorf("update: could not solve for posterior mean: %v",
			err)
	}

	cov := mat.NewSymDense(b.features, nil)
	if err := chol.InverseTo(cov); err != nil {
		return fmt.Errorf("update: could not invert posterior precision: %v",
			err)
	}

	if !floatutils.AllFinite(w.RawVector().Data) ||
		!floatutils.AllFinite(cov.RawSymmetric().Data) {
		return fmt.Errorf("update: non-finite posterior state")
	}

	b.w = w
	b.cov = cov
	return nil
}

// Sample draws one weight vector from the current posterior N(w, Σ)
func (b *BLR) Sample(src rand.Source) (*mat.VecDense, error) {
	normal, ok := distmv.NewNormal(b.w.RawVector().Data, b.cov, src)
	if !ok {
		return nil, fmt.Errorf("sample: posterior covariance is not " +
			"positive definite")
	}

	return mat.NewVecDense(b.features, normal.Rand(nil)), nil
}

// Weights returns a copy of the posterior mean weight vector
func (b *BLR) Weights() *mat.VecDense {
	return mat.VecDenseCopyOf(b.w)
}

// Cov returns a copy of the posterior covariance
func (b *BLR) Cov() *mat.SymDense {
	cov := mat.NewSymDense(b.features, nil)
	cov.CopySym(b.cov)
	return cov
}

// SetPosterior overwrites the posterior wholesale. Used to assign a
// target-side posterior from an agent-side one; the two never share
// storage.
func (b *BLR) SetPosterior(w *mat.VecDense, cov *mat.SymDense) error {
	if w.Len() != b.features {
		msg := "setposterior: invalid mean dimension\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, b.features, w.Len())
	}
	if r := cov.Symmetric(); r != b.features {
		msg := "setposterior: invalid covariance dimension" +
			"\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, b.features, r)
	}

	b.w = mat.VecDenseCopyOf(w)
	newCov := mat.NewSymDense(b.features, nil)
	newCov.CopySym(cov)
	b.cov = newCov
	return nil
}
