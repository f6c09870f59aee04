// Package qrdqn implements the quantile-regression deep Q-learning
// algorithm. Instead of a single expected value per action, the
// learned network predicts a fixed number of quantile locations of the
// return distribution for each action, trained with the quantile
// regression (pinball) loss or its Huber-smoothed variant.
package qrdqn

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/godqn/diagnostics"
	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/network"
	ts "github.com/samuelfneumann/godqn/timestep"
	"github.com/samuelfneumann/godqn/utils/floatutils"
	"github.com/samuelfneumann/godqn/utils/matutils"
	"github.com/samuelfneumann/godqn/utils/tensorutils"
)

// QRDQN implements the QR-DQN algorithm. Four networks share weights
// by value:
//
//	behaviourNet selects actions online with batch size 1.
//	trainNet holds the loss and is the only network whose weights the
//		solver adapts.
//	evalNet mirrors trainNet and provides the current quantile
//		locations used to fix the pinball indicator before each
//		gradient step, so no gradient can flow through the indicator.
//	targetNet is the frozen network providing the backup target. It is
//		never touched by the solver and changes only on SyncTarget().
type QRDQN struct {
	behaviourNet network.QuantileMLP
	behaviourVM  G.VM

	trainNet network.QuantileMLP
	trainVM  G.VM
	solver   G.Solver

	evalNet network.QuantileMLP
	evalVM  G.VM

	targetNet network.QuantileMLP
	targetVM  G.VM

	// Input nodes of the train graph, fed before each gradient step.
	// The loss is quadCoeff·δ² + linCoeff·δ + offsetCoeff elementwise,
	// with the quantile weights and Huber region scalars folded into
	// the coefficients outside the graph.
	selectedActions *G.Node // [batch, actions, quantiles] one-hot mask
	backupTargets   *G.Node // [batch, 1, quantiles]
	quadCoeff       *G.Node // [batch, quantiles, quantiles]
	linCoeff        *G.Node
	offsetCoeff     *G.Node

	lossVal *G.Value

	features     int
	numActions   int
	numQuantiles int
	batchSize    int
	tauHat       []float64 // Fixed quantile midpoints (i + 0.5)/N

	huberOrder    float64
	gamma         float64
	epsilon       float64
	normalizeZVar bool

	// Target network synchronization schedule
	tau                  float64
	targetUpdateInterval int
	gradientSteps        int

	replay expreplay.ExperienceReplayer
	diags  *diagnostics.Registry
	rng    *rand.Rand

	// Previous states and actions to add to the replay buffer
	prevStep   ts.TimeStep
	prevAction int
	nextStep   ts.TimeStep

	eval bool
}

// Diagnostic series recorded on each gradient step
const (
	LossSeries      string = "loss"
	ZVarianceSeries string = "zVariance"
)

// New creates and returns a new QRDQN agent acting in an environment
// with the given observation feature size and number of discrete
// actions, enumerated from 0.
func New(features, numActions int, config Config,
	seed int64) (*QRDQN, error) {
	if features < 1 {
		return nil, fmt.Errorf("qrdqn: feature size must be positive "+
			"\n\twant(>0) \n\thave(%v)", features)
	}
	if numActions < 1 {
		return nil, fmt.Errorf("qrdqn: number of actions must be positive "+
			"\n\twant(>0) \n\thave(%v)", numActions)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("qrdqn: invalid configuration: %v", err)
	}

	batchSize := config.BatchSize()
	numQuantiles := config.NumQuantiles

	// Behaviour network for selecting single actions
	g := G.NewGraph()
	behaviourNet, err := network.NewQuantileMLP(features, 1, numActions,
		numQuantiles, g, config.PolicyLayers, config.Biases,
		config.InitWFn.InitWFn(), config.Activations)
	if err != nil {
		return nil, fmt.Errorf("qrdqn: could not create behaviour "+
			"network: %v", err)
	}
	behaviourVM := G.NewTapeMachine(g)

	// Training network, holding the loss
	trainClone, err := behaviourNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("qrdqn: could not create training "+
			"network: %v", err)
	}
	trainNet := trainClone.(network.QuantileMLP)

	// Forward-only mirror of the training network, for computing the
	// pinball indicator at the current weights
	evalClone, err := trainNet.Clone()
	if err != nil {
		return nil, fmt.Errorf("qrdqn: could not create eval network: %v", err)
	}
	evalNet := evalClone.(network.QuantileMLP)
	evalVM := G.NewTapeMachine(evalNet.Graph())

	// Frozen target network providing the backup
	targetClone, err := trainNet.Clone()
	if err != nil {
		return nil, fmt.Errorf("qrdqn: could not create target "+
			"network: %v", err)
	}
	targetNet := targetClone.(network.QuantileMLP)
	targetVM := G.NewTapeMachine(targetNet.Graph())

	agent := &QRDQN{
		behaviourNet: behaviourNet,
		behaviourVM:  behaviourVM,
		trainNet:     trainNet,
		solver:       config.Solver,
		evalNet:      evalNet,
		evalVM:       evalVM,
		targetNet:    targetNet,
		targetVM:     targetVM,

		lossVal: new(G.Value),

		features:     features,
		numActions:   numActions,
		numQuantiles: numQuantiles,
		batchSize:    batchSize,
		tauHat:       quantileMidpoints(numQuantiles),

		huberOrder:    config.HuberOrder,
		gamma:         config.Gamma,
		epsilon:       config.Epsilon,
		normalizeZVar: config.NormalizeZVariance,

		tau:                  config.Tau,
		targetUpdateInterval: config.TargetUpdateInterval,

		diags: diagnostics.NewRegistry(),
		rng:   rand.New(rand.NewSource(seed)),
	}

	if err := agent.addLoss(); err != nil {
		return nil, fmt.Errorf("qrdqn: %v", err)
	}
	agent.trainVM = G.NewTapeMachine(
		trainNet.Graph(),
		G.BindDualValues(trainNet.Learnables()...),
	)

	agent.replay, err = config.Replay.Create(features, numActions, seed)
	if err != nil {
		return nil, fmt.Errorf("qrdqn: could not create experience replay "+
			"buffer: %v", err)
	}

	for _, series := range []string{LossSeries, ZVarianceSeries} {
		if err := agent.diags.Declare(series); err != nil {
			return nil, fmt.Errorf("qrdqn: %v", err)
		}
	}

	return agent, nil
}

// addLoss adds the quantile regression loss to the training network's
// computational graph.
//
// The loss is the pairwise pinball loss between the N predicted
// quantile locations of the taken action and the N backup target
// samples, weighted by |τ̂ᵢ - 𝟙[δ < 0]|, reduced by a mean over the
// target samples, a sum over the quantiles, and a mean over the batch.
// The indicator weights and the Huber region scalars are computed
// outside the graph and fed as the constant coefficients of the
// elementwise quadratic quadCoeff·δ² + linCoeff·δ + offsetCoeff, so
// no gradient can flow through the indicator.
func (q *QRDQN) addLoss() error {
	gTrain := q.trainNet.Graph()
	batch, actions, quantiles := q.batchSize, q.numActions, q.numQuantiles

	q.selectedActions = G.NewTensor(gTrain, tensor.Float64, 3,
		G.WithShape(batch, actions, quantiles), G.WithName("actionMask"))
	q.backupTargets = G.NewTensor(gTrain, tensor.Float64, 3,
		G.WithShape(batch, 1, quantiles), G.WithName("backupTarget"))
	q.quadCoeff = G.NewTensor(gTrain, tensor.Float64, 3,
		G.WithShape(batch, quantiles, quantiles), G.WithName("quadCoeff"))
	q.linCoeff = G.NewTensor(gTrain, tensor.Float64, 3,
		G.WithShape(batch, quantiles, quantiles), G.WithName("linCoeff"))
	q.offsetCoeff = G.NewTensor(gTrain, tensor.Float64, 3,
		G.WithShape(batch, quantiles, quantiles), G.WithName("offsetCoeff"))

	// Quantile locations of the taken action: [batch, quantiles, 1]
	zSelected := G.Must(G.HadamardProd(q.trainNet.Prediction()[0],
		q.selectedActions))
	zSelected = G.Must(G.Sum(zSelected, 1))
	zSelected = G.Must(G.Reshape(zSelected,
		tensor.Shape{batch, quantiles, 1}))

	// δ[b, i, j] = target[b, j] - z[b, i]
	delta := G.Must(G.BroadcastSub(q.backupTargets, zSelected,
		[]byte{1}, []byte{2}))

	quad := G.Must(G.HadamardProd(delta, delta))
	quad = G.Must(G.HadamardProd(q.quadCoeff, quad))
	lin := G.Must(G.HadamardProd(q.linCoeff, delta))

	losses := G.Must(G.Add(quad, lin))
	losses = G.Must(G.Add(losses, q.offsetCoeff))

	cost := G.Must(G.Mean(losses, 2))
	cost = G.Must(G.Sum(cost, 1))
	cost = G.Must(G.Mean(cost))
	G.Read(cost, q.lossVal)

	if _, err := G.Grad(cost, q.trainNet.Learnables()...); err != nil {
		return fmt.Errorf("addloss: could not compute gradient: %v", err)
	}
	return nil
}

// ObserveFirst observes and records the first episodic timestep
func (q *QRDQN) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n", t.Number)
	}
	q.prevStep = ts.TimeStep{}
	q.nextStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep
func (q *QRDQN) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != 1 {
		return fmt.Errorf("observe: value-based methods do not have "+
			"multi-dimensional actions \n\twant(1) \n\thave(%v)", action.Len())
	}

	if !q.nextStep.First() {
		prevAction := matutils.OneHot(q.prevAction, q.numActions)
		transition := ts.NewTransition(q.prevStep, prevAction, q.nextStep)
		if err := q.replay.Add(transition); err != nil {
			return fmt.Errorf("observe: could not add to replay "+
				"buffer: %v", err)
		}
	}

	q.prevStep = q.nextStep
	q.nextStep = nextStep
	q.prevAction = int(action.AtVec(0))
	return nil
}

// EndEpisode stores the terminal transition of the episode
func (q *QRDQN) EndEpisode() {
	if q.nextStep.Last() {
		prevAction := matutils.OneHot(q.prevAction, q.numActions)
		transition := ts.NewTransition(q.prevStep, prevAction, q.nextStep)
		if err := q.replay.Add(transition); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not store terminal "+
				"transition: %v\n", err)
		}
	}
}

// Step updates the weights of the training network with a single
// gradient step on a batch sampled from the replay buffer. The frozen
// target network is synchronized on the configured interval.
func (q *QRDQN) Step() error {
	state, action, reward, nextState, done, err := q.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}
	if err := expreplay.CheckBatch(q.replay, q.features, q.numActions, state,
		action, reward, nextState, done); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Quantile locations of the next states under the frozen target
	if err := q.targetNet.SetInput(nextState); err != nil {
		return fmt.Errorf("step: could not set target net input: %v", err)
	}
	if err := q.targetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target net: %v", err)
	}
	targetZ := tensorutils.Float64s(q.targetNet.Output()[0])
	backup := backupTargets(targetZ, reward, done, q.batchSize, q.numActions,
		q.numQuantiles, q.gamma)
	q.targetVM.Reset()

	// Current quantile locations for the taken actions, used to fix
	// the pinball indicator at the current weights
	if err := q.evalNet.SetInput(state); err != nil {
		return fmt.Errorf("step: could not set eval net input: %v", err)
	}
	if err := q.evalVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run eval net: %v", err)
	}
	z := tensorutils.Float64s(q.evalNet.Output()[0])

	taken := takenActions(action, q.batchSize, q.numActions)
	zSelected := selectQuantiles(z, taken, q.batchSize, q.numActions,
		q.numQuantiles)
	zVar := zVariance(z, q.batchSize, q.numActions, q.numQuantiles,
		q.normalizeZVar)
	q.evalVM.Reset()

	quad, lin, offset := lossCoefficients(backup, zSelected, q.tauHat,
		q.batchSize, q.numQuantiles, q.huberOrder)

	// Feed the training graph
	if err := q.feed(q.selectedActions, expandMask(taken, q.numActions,
		q.numQuantiles), q.batchSize, q.numActions, q.numQuantiles); err != nil {
		return fmt.Errorf("step: %v", err)
	}
	if err := q.feed(q.backupTargets, backup, q.batchSize, 1,
		q.numQuantiles); err != nil {
		return fmt.Errorf("step: %v", err)
	}
	for node, backing := range map[*G.Node][]float64{
		q.quadCoeff:   quad,
		q.linCoeff:    lin,
		q.offsetCoeff: offset,
	} {
		if err := q.feed(node, backing, q.batchSize, q.numQuantiles,
			q.numQuantiles); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}
	if err := q.trainNet.SetInput(state); err != nil {
		return fmt.Errorf("step: could not set trainNet input: %v", err)
	}

	// Run the learning step
	if err := q.trainVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run training step: %v", err)
	}
	if err := q.solver.Step(q.trainNet.Model()); err != nil {
		return fmt.Errorf("step: could not step solver: %v", err)
	}
	q.trainVM.Reset()
	q.gradientSteps++

	loss := q.Loss()
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return fmt.Errorf("step: loss is NaN or Inf")
	}
	if err := q.diags.Record(LossSeries, loss); err != nil {
		return fmt.Errorf("step: %v", err)
	}
	if err := q.diags.Record(ZVarianceSeries, zVar); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// The target network is never adapted by the solver and changes
	// only on this schedule
	if q.gradientSteps%q.targetUpdateInterval == 0 {
		if err := q.SyncTarget(); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}

	if err := q.evalNet.Set(q.trainNet); err != nil {
		return fmt.Errorf("step: could not update eval net: %v", err)
	}
	if err := q.behaviourNet.Set(q.trainNet); err != nil {
		return fmt.Errorf("step: could not update behaviour net: %v", err)
	}
	return nil
}

// feed sets the value of an input node of the training graph
func (q *QRDQN) feed(node *G.Node, backing []float64, shape ...int) error {
	value := tensor.New(tensor.WithShape(shape...),
		tensor.WithBacking(backing))
	if err := G.Let(node, value); err != nil {
		return fmt.Errorf("feed: could not set %v: %v", node.Name(), err)
	}
	return nil
}

// SyncTarget copies the trained weights into the frozen target network
func (q *QRDQN) SyncTarget() error {
	if q.tau == 1.0 {
		return q.targetNet.Set(q.trainNet)
	}
	return q.targetNet.Polyak(q.trainNet, q.tau)
}

// Loss returns the loss computed by the last gradient step
func (q *QRDQN) Loss() float64 {
	if q.lossVal == nil || *q.lossVal == nil {
		return math.NaN()
	}
	return (*q.lossVal).Data().(float64)
}

// Estimate returns the expected value of each action in the given
// observation, the mean over the predicted quantile locations
func (q *QRDQN) Estimate(obs mat.Vector) (*mat.VecDense, error) {
	if obs.Len() != q.features {
		msg := "estimate: invalid feature size \n\twant(%v) \n\thave(%v)"
		return nil, fmt.Errorf(msg, q.features, obs.Len())
	}

	input := make([]float64, q.features)
	for i := range input {
		input[i] = obs.AtVec(i)
	}
	if err := q.behaviourNet.SetInput(input); err != nil {
		return nil, fmt.Errorf("estimate: could not set input: %v", err)
	}
	if err := q.behaviourVM.RunAll(); err != nil {
		return nil, fmt.Errorf("estimate: could not run behaviour net: %v",
			err)
	}
	z := tensorutils.Float64s(q.behaviourNet.Output()[0])
	q.behaviourVM.Reset()

	values := mat.NewVecDense(q.numActions, nil)
	for a := 0; a < q.numActions; a++ {
		values.SetVec(a, floatutils.Mean(z[a*q.numQuantiles:(a+1)*q.numQuantiles]))
	}
	return values, nil
}

// SelectAction selects an action greedily with respect to the expected
// value of each action. In training mode a uniformly random action is
// taken with probability epsilon.
func (q *QRDQN) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	if !q.eval && q.rng.Float64() < q.epsilon {
		action := q.rng.Intn(q.numActions)
		return mat.NewVecDense(1, []float64{float64(action)}), nil
	}

	values, err := q.Estimate(t.Observation)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}

	_, maxIndices := floatutils.MaxSlice(values.RawVector().Data)
	action := maxIndices[q.rng.Int()%len(maxIndices)]
	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// Eval sets the agent into evaluation mode
func (q *QRDQN) Eval() {
	q.eval = true
}

// Train sets the agent into training mode
func (q *QRDQN) Train() {
	q.eval = false
}

// IsEval indicates whether the agent is in evaluation mode
func (q *QRDQN) IsEval() bool {
	return q.eval
}

// Diagnostics returns the diagnostic series recorded by the agent
func (q *QRDQN) Diagnostics() *diagnostics.Registry {
	return q.diags
}

// Quantiles returns a copy of the fixed quantile midpoints τ̂ᵢ
func (q *QRDQN) Quantiles() []float64 {
	midpoints := make([]float64, len(q.tauHat))
	copy(midpoints, q.tauHat)
	return midpoints
}

// quantileMidpoints returns the fixed quantile midpoints
// τ̂ᵢ = (i + 0.5)/n for i = 0, ..., n-1
func quantileMidpoints(n int) []float64 {
	midpoints := make([]float64, n)
	for i := range midpoints {
		midpoints[i] = (float64(i) + 0.5) / float64(n)
	}
	return midpoints
}

// backupTargets computes the backup target samples
// r + γ(1 - done)·z'ⱼ, where z' are the target network's quantile
// locations of the greedy next action under the target network's
// expected value. Terminal transitions carry no future value: every
// target sample collapses to the reward. The returned slice has shape
// [batch, quantiles].
func backupTargets(targetZ, rewards, dones []float64, batch, actions,
	quantiles int, gamma float64) []float64 {
	backup := make([]float64, batch*quantiles)
	for b := 0; b < batch; b++ {
		row := targetZ[b*actions*quantiles : (b+1)*actions*quantiles]

		greedy := 0
		bestValue := math.Inf(-1)
		for a := 0; a < actions; a++ {
			value := floatutils.Mean(row[a*quantiles : (a+1)*quantiles])
			if value > bestValue {
				bestValue = value
				greedy = a
			}
		}

		for j := 0; j < quantiles; j++ {
			z := row[greedy*quantiles+j]
			backup[b*quantiles+j] = rewards[b] + gamma*(1-dones[b])*z
		}
	}
	return backup
}

// takenActions recovers the action index of each batch row from the
// one-hot action batch
func takenActions(actions []float64, batch, numActions int) []int {
	taken := make([]int, batch)
	for b := 0; b < batch; b++ {
		for a := 0; a < numActions; a++ {
			if actions[b*numActions+a] == 1.0 {
				taken[b] = a
				break
			}
		}
	}
	return taken
}

// selectQuantiles returns the quantile locations of the taken action
// of each batch row, with shape [batch, quantiles]
func selectQuantiles(z []float64, taken []int, batch, actions,
	quantiles int) []float64 {
	selected := make([]float64, batch*quantiles)
	for b := 0; b < batch; b++ {
		start := b*actions*quantiles + taken[b]*quantiles
		copy(selected[b*quantiles:(b+1)*quantiles], z[start:start+quantiles])
	}
	return selected
}

// expandMask expands the taken action of each batch row into a one-hot
// mask over [batch, actions, quantiles], selecting all of the taken
// action's quantiles
func expandMask(taken []int, actions, quantiles int) []float64 {
	mask := make([]float64, len(taken)*actions*quantiles)
	for b, a := range taken {
		start := b*actions*quantiles + a*quantiles
		for i := 0; i < quantiles; i++ {
			mask[start+i] = 1.0
		}
	}
	return mask
}

// quantileWeights computes the pairwise weight matrices fed into the
// training graph as constants, fixing the pinball indicator
// 𝟙[δ < 0] at the current quantile locations.
//
// When k = 0 the returned weights are the signed (τ̂ᵢ - 𝟙[δ < 0]) and
// the region masks are nil. When k > 0 the weights are |τ̂ᵢ - 𝟙[δ < 0]|
// and the quadratic mask, linear sign, and linear mask select the
// Huber region of each pair.
func quantileWeights(backup, zSelected, tauHat []float64, batch,
	quantiles int, k float64) (weights, quadMask, linSign,
	linMask []float64) {
	weights = make([]float64, batch*quantiles*quantiles)
	if k > 0 {
		quadMask = make([]float64, len(weights))
		linSign = make([]float64, len(weights))
		linMask = make([]float64, len(weights))
	}

	for b := 0; b < batch; b++ {
		for i := 0; i < quantiles; i++ {
			for j := 0; j < quantiles; j++ {
				delta := backup[b*quantiles+j] - zSelected[b*quantiles+i]
				indicator := 0.0
				if delta < 0 {
					indicator = 1.0
				}

				index := b*quantiles*quantiles + i*quantiles + j
				if k == 0 {
					weights[index] = tauHat[i] - indicator
					continue
				}

				weights[index] = math.Abs(tauHat[i] - indicator)
				if math.Abs(delta) <= k {
					quadMask[index] = 1.0
				} else {
					linMask[index] = 1.0
					if delta >= 0 {
						linSign[index] = 1.0
					} else {
						linSign[index] = -1.0
					}
				}
			}
		}
	}
	return weights, quadMask, linSign, linMask
}

// lossCoefficients folds the quantile weights, the Huber region masks,
// and the Huber scalars into the coefficients of the elementwise
// quadratic quad·δ² + lin·δ + offset that the train graph evaluates.
//
// With k = 0 the loss is the signed pinball W·δ, so quad and offset
// are zero. With k > 0 the loss is W·Huber_k(δ): ½W·δ² inside the
// interval and k·W·(sign(δ)·δ - ½k) outside.
func lossCoefficients(backup, zSelected, tauHat []float64, batch,
	quantiles int, k float64) (quad, lin, offset []float64) {
	weights, quadMask, linSign, linMask := quantileWeights(backup, zSelected,
		tauHat, batch, quantiles, k)

	quad = make([]float64, len(weights))
	lin = make([]float64, len(weights))
	offset = make([]float64, len(weights))

	if k == 0 {
		copy(lin, weights)
		return quad, lin, offset
	}

	for i := range weights {
		quad[i] = 0.5 * weights[i] * quadMask[i]
		lin[i] = k * weights[i] * linSign[i]
		offset[i] = -0.5 * k * k * weights[i] * linMask[i]
	}
	return quad, lin, offset
}

// zVariance returns the mean variance of the predicted quantile
// locations across quantiles, averaged over the batch and actions.
// When normalize is true, each row's per-action variances are first
// scaled so their mean across actions is 1.
func zVariance(z []float64, batch, actions, quantiles int,
	normalize bool) float64 {
	total := 0.0
	for b := 0; b < batch; b++ {
		variances := make([]float64, actions)
		for a := 0; a < actions; a++ {
			start := b*actions*quantiles + a*quantiles
			row := z[start : start+quantiles]
			mean := floatutils.Mean(row)

			v := 0.0
			for _, value := range row {
				diff := value - mean
				v += diff * diff
			}
			variances[a] = v / float64(quantiles)
		}

		if normalize {
			rowMean := floatutils.Mean(variances)
			if rowMean != 0 {
				for a := range variances {
					variances[a] /= rowMean
				}
			}
		}
		total += floatutils.Mean(variances)
	}
	return total / float64(batch)
}
