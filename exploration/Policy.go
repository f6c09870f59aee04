// Package exploration implements uncertainty-driven action selection.
//
// Each policy consumes the per-action posterior-predictive mean and
// variance produced by a BLR ensemble and selects a single action.
// Thompson Sampling has no policy of its own here: under TS the
// forward pass itself uses posterior-resampled weights, so acting
// greedily on the resampled means realizes the sampling. The variance
// passed to a policy always comes from the agent posterior, even when
// the means were produced by resampled weights.
package exploration

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/godqn/utils/floatutils"
)

// idsEpsilon guards the information gain against vanishing. Kept so
// the reported information-gain values match the reference
// formulation; non-positive variances are rejected before the guard
// matters.
const idsEpsilon = 1e-5

// Policy selects an action from per-action value means and variances
type Policy interface {
	SelectAction(mean, variance mat.Vector) (int, error)
}

// checkInputs validates shared action-selection preconditions
func checkInputs(mean, variance mat.Vector) error {
	if mean.Len() == 0 {
		return fmt.Errorf("selectaction: no actions to select from")
	}
	if mean.Len() != variance.Len() {
		msg := "selectaction: mismatched mean and variance lengths" +
			"\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, mean.Len(), variance.Len())
	}
	for a := 0; a < variance.Len(); a++ {
		v := variance.AtVec(a)
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			msg := "selectaction: action %v has invalid variance %v"
			return fmt.Errorf(msg, a, v)
		}
	}
	return nil
}

// Greedy selects the action of maximal mean value. Ties are broken
// uniformly randomly.
type Greedy struct {
	rng *rand.Rand
}

// NewGreedy returns a new Greedy action selection policy
func NewGreedy(seed int64) *Greedy {
	return &Greedy{rng: rand.New(rand.NewSource(seed))}
}

// SelectAction returns argmax(mean)
func (g *Greedy) SelectAction(mean, variance mat.Vector) (int, error) {
	if err := checkInputs(mean, variance); err != nil {
		return 0, err
	}

	_, maxIndices := floatutils.MaxSlice(vecData(mean))
	return maxIndices[g.rng.Int()%len(maxIndices)], nil
}

// UCB selects actions optimistically, adding a scaled uncertainty
// bonus to each action's mean value before the argmax.
type UCB struct {
	nStds float64
	rng   *rand.Rand
}

// NewUCB returns a new UCB policy with uncertainty scale nStds
func NewUCB(nStds float64, seed int64) (*UCB, error) {
	if nStds < 0 {
		return nil, fmt.Errorf("newucb: uncertainty scale must be "+
			"non-negative \n\twant(≥0) \n\thave(%v)", nStds)
	}
	return &UCB{nStds: nStds, rng: rand.New(rand.NewSource(seed))}, nil
}

// SelectAction returns argmax(mean + nStds·√variance)
func (u *UCB) SelectAction(mean, variance mat.Vector) (int, error) {
	if err := checkInputs(mean, variance); err != nil {
		return 0, err
	}

	upper := make([]float64, mean.Len())
	for a := range upper {
		upper[a] = mean.AtVec(a) + u.nStds*math.Sqrt(variance.AtVec(a))
	}

	_, maxIndices := floatutils.MaxSlice(upper)
	return maxIndices[u.rng.Int()%len(maxIndices)], nil
}

// IDS implements Information-Directed Sampling: each action is scored
// by its squared expected regret divided by the information gained by
// taking it, and the action of minimal score is selected. A low score
// means either low regret or high information value.
type IDS struct {
	nStds float64
	rho   float64 // Reference noise level for the information gain
	rng   *rand.Rand
}

// NewIDS returns a new IDS policy with uncertainty scale nStds and
// reference noise level rho
func NewIDS(nStds, rho float64, seed int64) (*IDS, error) {
	if nStds < 0 {
		return nil, fmt.Errorf("newids: uncertainty scale must be "+
			"non-negative \n\twant(≥0) \n\thave(%v)", nStds)
	}
	if rho <= 0 {
		return nil, fmt.Errorf("newids: reference noise level must be "+
			"positive \n\twant(>0) \n\thave(%v)", rho)
	}
	return &IDS{
		nStds: nStds,
		rho:   rho,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Scores computes the per-action regret, information gain, and IDS
// score. A non-finite score is a fatal numerical error, never returned
// silently.
func (p *IDS) Scores(mean, variance mat.Vector) (regret, infoGain,
	scores []float64, err error) {
	if err := checkInputs(mean, variance); err != nil {
		return nil, nil, nil, err
	}

	numActions := mean.Len()
	upper := make([]float64, numActions)
	for a := 0; a < numActions; a++ {
		upper[a] = mean.AtVec(a) + p.nStds*math.Sqrt(variance.AtVec(a))
	}
	best := floatutils.Max(upper...)

	regret = make([]float64, numActions)
	infoGain = make([]float64, numActions)
	scores = make([]float64, numActions)
	for a := 0; a < numActions; a++ {
		v := variance.AtVec(a)
		regret[a] = best - (mean.AtVec(a) - p.nStds*math.Sqrt(v))
		infoGain[a] = math.Log(1+v/(p.rho*p.rho)) + idsEpsilon
		scores[a] = regret[a] * regret[a] / infoGain[a]
	}

	if !floatutils.AllFinite(scores) {
		return nil, nil, nil, fmt.Errorf("scores: IDS score is NaN or Inf")
	}

	return regret, infoGain, scores, nil
}

// SelectAction returns argmin of the IDS score
func (p *IDS) SelectAction(mean, variance mat.Vector) (int, error) {
	_, _, scores, err := p.Scores(mean, variance)
	if err != nil {
		return 0, err
	}

	_, minIndices := floatutils.MinSlice(scores)
	return minIndices[p.rng.Int()%len(minIndices)], nil
}

// vecData returns the values of a vector as a slice
func vecData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
