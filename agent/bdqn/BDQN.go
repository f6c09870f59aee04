// Package bdqn implements the Bayesian deep Q-learning algorithm. A
// neural network is trained with the usual temporal difference loss to
// learn a feature representation, and a Bayesian linear regression
// posterior per action is fit in closed form on the features of the
// last hidden layer. Action selection is driven by the posterior's
// uncertainty: Thompson Sampling, UCB, or Information-Directed
// Sampling.
package bdqn

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/godqn/blr"
	"github.com/samuelfneumann/godqn/diagnostics"
	"github.com/samuelfneumann/godqn/exploration"
	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/network"
	ts "github.com/samuelfneumann/godqn/timestep"
	"github.com/samuelfneumann/godqn/utils/floatutils"
	"github.com/samuelfneumann/godqn/utils/matutils"
	"github.com/samuelfneumann/godqn/utils/tensorutils"
)

// BDQN implements the Bayesian deep Q-learning algorithm. Four
// networks share weights by value:
//
//	behaviourNet computes features online with batch size 1.
//	trainNet holds the temporal difference loss and is the only
//		network whose weights the solver adapts.
//	evalNet mirrors trainNet for batched forward passes.
//	targetNet is frozen and provides the backup. It is never touched
//		by the solver and changes only on SyncTarget().
//
// Alongside the networks, an agent-side posterior holds one Bayesian
// linear regression per action, fit on the feature layer. A frozen
// target posterior supplies the value part of the posterior backup and
// the Thompson Sampling act-time weights; it is only ever overwritten
// wholesale by the agent posterior, never trained.
type BDQN struct {
	behaviourNet network.ValueFeatureMLP
	behaviourVM  G.VM

	trainNet network.ValueFeatureMLP
	trainVM  G.VM
	solver   G.Solver

	evalNet network.ValueFeatureMLP
	evalVM  G.VM

	targetNet network.ValueFeatureMLP
	targetVM  G.VM

	// Input nodes of the train graph, fed before each gradient step
	selectedActions *G.Node // [batch, actions] one-hot
	updateTargets   *G.Node // [batch]

	lossVal *G.Value

	agentPosterior  *blr.Ensemble
	targetPosterior *blr.Ensemble

	// Weights used to compute action-selection values. Under Thompson
	// Sampling these are redrawn from the frozen target posterior;
	// under every other rule they are the agent posterior means.
	actWeights []*mat.VecDense

	policyType PolicyType
	policy     exploration.Policy
	greedy     *exploration.Greedy // Evaluation-mode action selection
	ids        *exploration.IDS    // Non-nil only when policyType is IDS

	features    int
	numActions  int
	featureSize int
	batchSize   int
	gamma       float64

	blrUpdateInterval int

	// Target synchronization schedule
	tau                  float64
	targetUpdateInterval int
	gradientSteps        int

	replay expreplay.ExperienceReplayer
	diags  *diagnostics.Registry
	src    rand.Source

	// Previous states and actions to add to the replay buffer
	prevStep   ts.TimeStep
	prevAction int
	nextStep   ts.TimeStep

	eval bool
}

// Diagnostic series recorded by the agent
const (
	LossSeries     string = "loss"
	RegretSeries   string = "regret"
	InfoGainSeries string = "informationGain"
	IDSScoreSeries string = "idsScore"
)

// New creates and returns a new BDQN agent acting in an environment
// with the given observation feature size and number of discrete
// actions, enumerated from 0.
func New(features, numActions int, config Config, seed int64) (*BDQN, error) {
	if features < 1 {
		return nil, fmt.Errorf("bdqn: feature size must be positive "+
			"\n\twant(>0) \n\thave(%v)", features)
	}
	if numActions < 1 {
		return nil, fmt.Errorf("bdqn: number of actions must be positive "+
			"\n\twant(>0) \n\thave(%v)", numActions)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("bdqn: invalid configuration: %v", err)
	}

	batchSize := config.BatchSize()

	// Behaviour network for computing single-observation features
	g := G.NewGraph()
	behaviourNet, err := network.NewValueFeatureMLP(features, 1, numActions,
		g, config.PolicyLayers, config.Biases, config.InitWFn.InitWFn(),
		config.Activations)
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create behaviour "+
			"network: %v", err)
	}
	behaviourVM := G.NewTapeMachine(g)

	// Training network, holding the loss
	trainClone, err := behaviourNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create training "+
			"network: %v", err)
	}
	trainNet := trainClone.(network.ValueFeatureMLP)

	// Forward-only mirror of the training network
	evalClone, err := trainNet.Clone()
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create eval network: %v", err)
	}
	evalNet := evalClone.(network.ValueFeatureMLP)
	evalVM := G.NewTapeMachine(evalNet.Graph())

	// Frozen target network providing the backup
	targetClone, err := trainNet.Clone()
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create target network: %v",
			err)
	}
	targetNet := targetClone.(network.ValueFeatureMLP)
	targetVM := G.NewTapeMachine(targetNet.Graph())

	featureSize := behaviourNet.FeatureSize()
	agentPosterior, err := blr.NewEnsemble(numActions, featureSize,
		config.PriorPrecision, config.NoiseStdDev)
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create agent posterior: %v",
			err)
	}
	targetPosterior, err := blr.NewEnsemble(numActions, featureSize,
		config.PriorPrecision, config.NoiseStdDev)
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create target posterior: %v",
			err)
	}

	agent := &BDQN{
		behaviourNet: behaviourNet,
		behaviourVM:  behaviourVM,
		trainNet:     trainNet,
		solver:       config.Solver,
		evalNet:      evalNet,
		evalVM:       evalVM,
		targetNet:    targetNet,
		targetVM:     targetVM,

		lossVal: new(G.Value),

		agentPosterior:  agentPosterior,
		targetPosterior: targetPosterior,
		actWeights:      targetPosterior.Means(),

		policyType: config.Policy,
		greedy:     exploration.NewGreedy(seed),

		features:    features,
		numActions:  numActions,
		featureSize: featureSize,
		batchSize:   batchSize,
		gamma:       config.Gamma,

		blrUpdateInterval: config.BLRUpdateInterval,

		tau:                  config.Tau,
		targetUpdateInterval: config.TargetUpdateInterval,

		diags: diagnostics.NewRegistry(),
		src:   rand.NewSource(uint64(seed)),
	}

	switch config.Policy {
	case Greedy, ThompsonSampling:
		agent.policy = exploration.NewGreedy(seed)
	case UCB:
		agent.policy, err = exploration.NewUCB(config.NStds, seed)
	case IDS:
		agent.ids, err = exploration.NewIDS(config.NStds, config.Rho, seed)
		agent.policy = agent.ids
	}
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create exploration "+
			"policy: %v", err)
	}

	if err := agent.addLoss(); err != nil {
		return nil, fmt.Errorf("bdqn: %v", err)
	}
	agent.trainVM = G.NewTapeMachine(
		trainNet.Graph(),
		G.BindDualValues(trainNet.Learnables()...),
	)

	agent.replay, err = config.Replay.Create(features, numActions, seed)
	if err != nil {
		return nil, fmt.Errorf("bdqn: could not create experience replay "+
			"buffer: %v", err)
	}

	series := []string{LossSeries}
	if config.Policy == IDS {
		series = append(series, RegretSeries, InfoGainSeries, IDSScoreSeries)
	}
	for _, name := range series {
		if err := agent.diags.Declare(name); err != nil {
			return nil, fmt.Errorf("bdqn: %v", err)
		}
	}

	return agent, nil
}

// addLoss adds the masked mean squared temporal difference loss to the
// training network's computational graph. The update target is
// computed outside the graph and fed as a constant input node, so no
// gradient flows into the frozen target network.
func (b *BDQN) addLoss() error {
	gTrain := b.trainNet.Graph()

	b.selectedActions = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(b.batchSize, b.numActions), G.WithName("actionSelected"))
	b.updateTargets = G.NewVector(gTrain, tensor.Float64,
		G.WithShape(b.batchSize), G.WithName("updateTarget"))

	qSelected := G.Must(G.HadamardProd(b.trainNet.Prediction()[0],
		b.selectedActions))
	qSelected = G.Must(G.Sum(qSelected, 1))

	losses := G.Must(G.Sub(b.updateTargets, qSelected))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))
	G.Read(cost, b.lossVal)

	if _, err := G.Grad(cost, b.trainNet.Learnables()...); err != nil {
		return fmt.Errorf("addloss: could not compute gradient: %v", err)
	}
	return nil
}

// ObserveFirst observes and records the first episodic timestep. Under
// Thompson Sampling in training mode the action-selection weights are
// redrawn from the frozen target posterior at the start of every
// episode.
func (b *BDQN) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n", t.Number)
	}
	b.prevStep = ts.TimeStep{}
	b.nextStep = t

	if b.policyType == ThompsonSampling && !b.eval {
		if err := b.Resample(); err != nil {
			return fmt.Errorf("observefirst: %v", err)
		}
	}
	return nil
}

// Observe observes and records any timestep other than the first
// timestep
func (b *BDQN) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != 1 {
		return fmt.Errorf("observe: value-based methods do not have "+
			"multi-dimensional actions \n\twant(1) \n\thave(%v)", action.Len())
	}

	if !b.nextStep.First() {
		prevAction := matutils.OneHot(b.prevAction, b.numActions)
		transition := ts.NewTransition(b.prevStep, prevAction, b.nextStep)
		if err := b.replay.Add(transition); err != nil {
			return fmt.Errorf("observe: could not add to replay "+
				"buffer: %v", err)
		}
	}

	b.prevStep = b.nextStep
	b.nextStep = nextStep
	b.prevAction = int(action.AtVec(0))
	return nil
}

// EndEpisode stores the terminal transition of the episode
func (b *BDQN) EndEpisode() {
	if b.nextStep.Last() {
		prevAction := matutils.OneHot(b.prevAction, b.numActions)
		transition := ts.NewTransition(b.prevStep, prevAction, b.nextStep)
		if err := b.replay.Add(transition); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not store terminal "+
				"transition: %v\n", err)
		}
	}
}

// Step updates the weights of the training network with a single
// gradient step on a batch sampled from the replay buffer, and updates
// the agent posterior in closed form on the configured interval.
func (b *BDQN) Step() error {
	state, action, reward, nextState, done, err := b.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}
	if err := expreplay.CheckBatch(b.replay, b.features, b.numActions, state,
		action, reward, nextState, done); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Frozen target network's values and features of the next states
	targetQ, targetPhi, err := b.forward(b.targetNet, b.targetVM, nextState)
	if err != nil {
		return fmt.Errorf("step: could not run target net: %v", err)
	}

	// Current network's values and features of the next states, for
	// the double Q-learning action selection
	nextQ, nextPhi, err := b.forward(b.evalNet, b.evalVM, nextState)
	if err != nil {
		return fmt.Errorf("step: could not run eval net: %v", err)
	}

	// Current features of the states, for the posterior update
	_, phi, err := b.forward(b.evalNet, b.evalVM, state)
	if err != nil {
		return fmt.Errorf("step: could not run eval net: %v", err)
	}

	taken := takenActions(action, b.batchSize, b.numActions)

	// Network backup: the next action is selected by the current
	// network, its value comes from the frozen target network
	netTargets := doubleQTargets(nextQ, targetQ, reward, done, b.batchSize,
		b.numActions, b.gamma)

	// Run the learning step
	actionTensor := tensor.New(tensor.WithShape(b.batchSize, b.numActions),
		tensor.WithBacking(action))
	if err := G.Let(b.selectedActions, actionTensor); err != nil {
		return fmt.Errorf("step: could not set selected actions: %v", err)
	}
	targetTensor := tensor.New(tensor.WithShape(b.batchSize),
		tensor.WithBacking(netTargets))
	if err := G.Let(b.updateTargets, targetTensor); err != nil {
		return fmt.Errorf("step: could not set update targets: %v", err)
	}
	if err := b.trainNet.SetInput(state); err != nil {
		return fmt.Errorf("step: could not set trainNet input: %v", err)
	}
	if err := b.trainVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run training step: %v", err)
	}
	if err := b.solver.Step(b.trainNet.Model()); err != nil {
		return fmt.Errorf("step: could not step solver: %v", err)
	}
	b.trainVM.Reset()
	b.gradientSteps++

	loss := b.Loss()
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return fmt.Errorf("step: loss is NaN or Inf")
	}
	if err := b.diags.Record(LossSeries, loss); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Closed-form posterior update on the feature layer. The value
	// part of the backup is the frozen target posterior's mean
	// prediction for the action the agent posterior would select.
	if b.gradientSteps%b.blrUpdateInterval == 0 {
		blrTargets, err := b.posteriorTargets(nextPhi, targetPhi, reward, done)
		if err != nil {
			return fmt.Errorf("step: %v", err)
		}

		phiBatch := mat.NewDense(b.batchSize, b.featureSize, phi)
		err = b.agentPosterior.Update(phiBatch,
			mat.NewVecDense(b.batchSize, blrTargets), taken)
		if err != nil {
			return fmt.Errorf("step: could not update posterior: %v", err)
		}
	}

	// The frozen targets change only on this schedule
	if b.gradientSteps%b.targetUpdateInterval == 0 {
		if err := b.SyncTarget(); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}

	if err := b.evalNet.Set(b.trainNet); err != nil {
		return fmt.Errorf("step: could not update eval net: %v", err)
	}
	if err := b.behaviourNet.Set(b.trainNet); err != nil {
		return fmt.Errorf("step: could not update behaviour net: %v", err)
	}
	return nil
}

// forward runs a batched forward pass of a network, returning copies
// of the predicted action values and features
func (b *BDQN) forward(net network.ValueFeatureMLP, vm G.VM,
	input []float64) (q, phi []float64, err error) {
	if err := net.SetInput(input); err != nil {
		return nil, nil, fmt.Errorf("forward: could not set input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("forward: could not run network: %v", err)
	}

	q = append([]float64(nil), tensorutils.Float64s(net.Output()[0])...)
	phi = append([]float64(nil), tensorutils.Float64s(net.Output()[1])...)
	vm.Reset()
	return q, phi, nil
}

// posteriorTargets computes the posterior backup
// r + γ(1 - done)·φ'target·w_target[a*], where a* is the greedy action
// under the agent posterior's means at the current network's features
// of the next state. Terminal transitions carry no future value.
func (b *BDQN) posteriorTargets(nextPhi, targetPhi, rewards,
	dones []float64) ([]float64, error) {
	agentWeights := b.agentPosterior.Means()
	targetWeights := b.targetPosterior.Means()

	targets := make([]float64, b.batchSize)
	for i := 0; i < b.batchSize; i++ {
		phiNext := mat.NewVecDense(b.featureSize,
			nextPhi[i*b.featureSize:(i+1)*b.featureSize])

		values := mat.NewVecDense(b.numActions, nil)
		for a := 0; a < b.numActions; a++ {
			values.SetVec(a, mat.Dot(phiNext, agentWeights[a]))
		}
		greedy := matutils.MaxVec(values)

		phiTarget := mat.NewVecDense(b.featureSize,
			targetPhi[i*b.featureSize:(i+1)*b.featureSize])
		value := mat.Dot(phiTarget, targetWeights[greedy])
		targets[i] = rewards[i] + b.gamma*(1-dones[i])*value
	}

	if !floatutils.AllFinite(targets) {
		return nil, fmt.Errorf("posteriortargets: non-finite backup target")
	}
	return targets, nil
}

// SyncTarget copies the trained network weights into the frozen target
// network and overwrites the target posterior wholesale with the agent
// posterior
func (b *BDQN) SyncTarget() error {
	if b.tau == 1.0 {
		if err := b.targetNet.Set(b.trainNet); err != nil {
			return fmt.Errorf("synctarget: %v", err)
		}
	} else if err := b.targetNet.Polyak(b.trainNet, b.tau); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}

	if err := b.targetPosterior.CopyFrom(b.agentPosterior); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// Resample redraws the action-selection weights from the frozen target
// posterior
func (b *BDQN) Resample() error {
	samples, err := b.targetPosterior.Sample(b.src)
	if err != nil {
		return fmt.Errorf("resample: %v", err)
	}
	b.actWeights = samples
	return nil
}

// ResetPosterior restores the agent and target posteriors to the prior
// and resets the action-selection weights to the prior means
func (b *BDQN) ResetPosterior() {
	b.agentPosterior.Reset()
	b.targetPosterior.Reset()
	b.actWeights = b.targetPosterior.Means()
}

// Posterior returns the agent-side posterior ensemble
func (b *BDQN) Posterior() *blr.Ensemble {
	return b.agentPosterior
}

// TargetPosterior returns the frozen target posterior ensemble
func (b *BDQN) TargetPosterior() *blr.Ensemble {
	return b.targetPosterior
}

// Loss returns the loss computed by the last gradient step
func (b *BDQN) Loss() float64 {
	if b.lossVal == nil || *b.lossVal == nil {
		return math.NaN()
	}
	return (*b.lossVal).Data().(float64)
}

// Estimate returns the agent posterior's mean value estimate of each
// action in the given observation
func (b *BDQN) Estimate(obs mat.Vector) (*mat.VecDense, error) {
	phi, err := b.observationFeatures(obs)
	if err != nil {
		return nil, fmt.Errorf("estimate: %v", err)
	}

	weights := b.agentPosterior.Means()
	values := mat.NewVecDense(b.numActions, nil)
	for a := 0; a < b.numActions; a++ {
		values.SetVec(a, mat.Dot(phi, weights[a]))
	}
	return values, nil
}

// SelectAction selects an action using the configured exploration
// rule. The value means come from the action-selection weights, which
// are samples from the frozen target posterior under Thompson Sampling
// and the agent posterior means otherwise; the variances always come
// from the agent posterior. In evaluation mode the action is greedy
// with respect to the agent posterior means.
func (b *BDQN) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	phi, err := b.observationFeatures(t.Observation)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}

	weights := b.actWeights
	if b.eval || b.policyType != ThompsonSampling {
		weights = b.agentPosterior.Means()
	}
	means := mat.NewVecDense(b.numActions, nil)
	for a := 0; a < b.numActions; a++ {
		means.SetVec(a, mat.Dot(phi, weights[a]))
	}

	phiRow := mat.NewDense(1, b.featureSize, nil)
	phiRow.SetRow(0, phi.RawVector().Data)
	_, variances, err := b.agentPosterior.Predict(phiRow)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	variance := variances.RowView(0)

	policy := b.policy
	if b.eval {
		policy = b.greedy
	} else if b.ids != nil {
		if err := b.recordIDS(means, variance); err != nil {
			return nil, fmt.Errorf("selectaction: %v", err)
		}
	}

	action, err := policy.SelectAction(means, variance)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// recordIDS records the mean regret, information gain, and IDS score
// of the current action selection
func (b *BDQN) recordIDS(means, variance mat.Vector) error {
	regret, infoGain, scores, err := b.ids.Scores(means, variance)
	if err != nil {
		return err
	}

	for name, values := range map[string][]float64{
		RegretSeries:   regret,
		InfoGainSeries: infoGain,
		IDSScoreSeries: scores,
	} {
		if err := b.diags.Record(name, floatutils.Mean(values)); err != nil {
			return err
		}
	}
	return nil
}

// observationFeatures runs the behaviour network on a single
// observation and returns a copy of its feature vector
func (b *BDQN) observationFeatures(obs mat.Vector) (*mat.VecDense, error) {
	if obs.Len() != b.features {
		msg := "invalid feature size \n\twant(%v) \n\thave(%v)"
		return nil, fmt.Errorf(msg, b.features, obs.Len())
	}

	input := make([]float64, b.features)
	for i := range input {
		input[i] = obs.AtVec(i)
	}
	if err := b.behaviourNet.SetInput(input); err != nil {
		return nil, fmt.Errorf("could not set input: %v", err)
	}
	if err := b.behaviourVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run behaviour net: %v", err)
	}

	data := tensorutils.Float64s(b.behaviourNet.Output()[1])
	phi := mat.NewVecDense(b.featureSize, append([]float64(nil), data...))
	b.behaviourVM.Reset()
	return phi, nil
}

// Eval sets the agent into evaluation mode
func (b *BDQN) Eval() {
	b.eval = true
}

// Train sets the agent into training mode
func (b *BDQN) Train() {
	b.eval = false
}

// IsEval indicates whether the agent is in evaluation mode
func (b *BDQN) IsEval() bool {
	return b.eval
}

// Diagnostics returns the diagnostic series recorded by the agent
func (b *BDQN) Diagnostics() *diagnostics.Registry {
	return b.diags
}

// takenActions recovers the action index of each batch row from the
// one-hot action batch
func takenActions(actions []float64, batch, numActions int) []int {
	taken := make([]int, batch)
	for i := 0; i < batch; i++ {
		for a := 0; a < numActions; a++ {
			if actions[i*numActions+a] == 1.0 {
				taken[i] = a
				break
			}
		}
	}
	return taken
}

// doubleQTargets computes the network backup
// r + γ(1 - done)·q_target(S', a*), where a* is greedy under the
// current network's values of the next state. Terminal transitions
// carry no future value.
func doubleQTargets(nextQ, targetQ, rewards, dones []float64, batch,
	numActions int, gamma float64) []float64 {
	targets := make([]float64, batch)
	for i := 0; i < batch; i++ {
		greedy := 0
		bestValue := math.Inf(-1)
		for a := 0; a < numActions; a++ {
			if nextQ[i*numActions+a] > bestValue {
				bestValue = nextQ[i*numActions+a]
				greedy = a
			}
		}
		targets[i] = rewards[i] +
			gamma*(1-dones[i])*targetQ[i*numActions+greedy]
	}
	return targets
}
