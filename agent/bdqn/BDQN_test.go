package bdqn

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/initwfn"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/solver"
	ts "github.com/samuelfneumann/godqn/timestep"
)

const tolerance float64 = 1e-12

// TestDoubleQTargets checks the double Q-learning backup: the next
// action is selected by the current network's values, its value comes
// from the frozen target network, and terminal transitions collapse to
// the reward
func TestDoubleQTargets(t *testing.T) {
	batch, actions := 2, 2
	gamma := 0.9

	// Row 0: the current network prefers action 1, whose target value
	// is 3 even though the target network's maximum is 7. Row 1 is
	// terminal.
	nextQ := []float64{
		1, 5,
		9, 9,
	}
	targetQ := []float64{
		7, 3,
		4, 4,
	}
	rewards := []float64{2.0, -1.0}
	dones := []float64{0.0, 1.0}

	targets := doubleQTargets(nextQ, targetQ, rewards, dones, batch, actions,
		gamma)

	want := []float64{2 + 0.9*3, -1}
	for i := range want {
		if math.Abs(targets[i]-want[i]) > tolerance {
			t.Errorf("target %v should be %v, got %v", i, want[i], targets[i])
		}
	}
}

// TestTakenActions checks the recovery of action indices from one-hot
// action batches
func TestTakenActions(t *testing.T) {
	actions := []float64{
		0, 1,
		1, 0,
	}
	taken := takenActions(actions, 2, 2)
	want := []int{1, 0}
	for i := range want {
		if taken[i] != want[i] {
			t.Errorf("row %v: taken action should be %v, got %v", i, want[i],
				taken[i])
		}
	}
}

// validConfig returns a small but complete agent configuration
func validConfig(policy PolicyType) Config {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(err)
	}
	adam, err := solver.NewDefaultAdam(0.001, 2)
	if err != nil {
		panic(err)
	}

	return Config{
		PolicyLayers: []int{8, 4},
		Biases:       []bool{true, true},
		Activations: []*network.Activation{
			network.ReLU(),
			network.ReLU(),
		},
		InitWFn: init,
		Solver:  adam,

		Replay: expreplay.Config{
			RemoveMethod:      expreplay.Fifo,
			SampleMethod:      expreplay.Uniform,
			RemoveSize:        1,
			SampleSize:        2,
			MaxReplayCapacity: 16,
			MinReplayCapacity: 2,
		},

		Gamma: 0.99,

		PriorPrecision:    1.0,
		NoiseStdDev:       1.0,
		BLRUpdateInterval: 1,

		Policy: policy,
		NStds:  1.0,
		Rho:    1.0,

		Tau:                  1.0,
		TargetUpdateInterval: 4,
	}
}

// TestNew checks agent construction for every exploration rule and the
// behaviour of an agent that has not yet taken a gradient step
func TestNew(t *testing.T) {
	for _, policy := range []PolicyType{Greedy, ThompsonSampling, UCB, IDS} {
		agent, err := New(3, 2, validConfig(policy), 13)
		if err != nil {
			t.Fatalf("policy %v: %v", policy, err)
		}

		if !math.IsNaN(agent.Loss()) {
			t.Errorf("policy %v: loss should be NaN before the first "+
				"gradient step", policy)
		}

		// Stepping with an unsampleable buffer is not an error
		if err := agent.Step(); err != nil {
			t.Errorf("policy %v: step with an empty buffer should be "+
				"ignored: %v", policy, err)
		}

		// Under the prior every posterior mean is 0, so every value
		// estimate is 0
		obs := mat.NewVecDense(3, []float64{0.1, -0.2, 0.3})
		values, err := agent.Estimate(obs)
		if err != nil {
			t.Fatalf("policy %v: %v", policy, err)
		}
		if values.Len() != 2 {
			t.Errorf("policy %v: estimate should have one value per "+
				"action, got %v", policy, values.Len())
		}
		for a := 0; a < values.Len(); a++ {
			if values.AtVec(a) != 0 {
				t.Errorf("policy %v: prior value estimate should be 0, "+
					"got %v", policy, values.AtVec(a))
			}
		}

		step := ts.New(ts.First, 0, 0.99, obs, 0)
		if err := agent.ObserveFirst(step); err != nil {
			t.Fatalf("policy %v: %v", policy, err)
		}
		action, err := agent.SelectAction(step)
		if err != nil {
			t.Fatalf("policy %v: %v", policy, err)
		}
		if action.Len() != 1 {
			t.Errorf("policy %v: action should be 1-dimensional, got %v",
				policy, action.Len())
		}
	}
}

// TestConfigValidate checks that invalid configurations are rejected
func TestConfigValidate(t *testing.T) {
	base := validConfig(IDS)
	if err := base.Validate(); err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}

	invalid := []func(*Config){
		func(c *Config) { c.PolicyLayers = nil },
		func(c *Config) { c.Gamma = -0.1 },
		func(c *Config) { c.PriorPrecision = 0 },
		func(c *Config) { c.NoiseStdDev = 0 },
		func(c *Config) { c.BLRUpdateInterval = 0 },
		func(c *Config) { c.Policy = PolicyType("EGreedy") },
		func(c *Config) { c.Rho = 0 },
		func(c *Config) { c.NStds = -1 },
		func(c *Config) { c.Tau = 1.5 },
		func(c *Config) { c.TargetUpdateInterval = 0 },
		func(c *Config) { c.Solver = nil },
	}

	for i, corrupt := range invalid {
		config := validConfig(IDS)
		corrupt(&config)
		if err := config.Validate(); err == nil {
			t.Errorf("corruption %v: expected validation error", i)
		}
	}
}

// TestResample checks that Thompson Sampling's action-selection
// weights are redrawn from the frozen target posterior, not the agent
// posterior, and that neither posterior is touched by resampling
func TestResample(t *testing.T) {
	agent, err := New(3, 2, validConfig(ThompsonSampling), 13)
	if err != nil {
		t.Fatal(err)
	}

	// Pin the target posterior to distinctive means with a near-zero
	// covariance so its samples are indistinguishable from the means.
	// The agent posterior stays at the zero-mean prior.
	featureSize := agent.Posterior().Features()
	cov := mat.NewSymDense(featureSize, nil)
	for j := 0; j < featureSize; j++ {
		cov.SetSym(j, j, 1e-18)
	}
	for a := 0; a < 2; a++ {
		w := mat.NewVecDense(featureSize, nil)
		for j := 0; j < featureSize; j++ {
			w.SetVec(j, 5.0*float64(1-2*a))
		}
		posterior, err := agent.TargetPosterior().Posterior(a)
		if err != nil {
			t.Fatal(err)
		}
		if err := posterior.SetPosterior(w, cov); err != nil {
			t.Fatal(err)
		}
	}

	agentBefore := agent.Posterior().Means()
	targetBefore := agent.TargetPosterior().Means()
	if err := agent.Resample(); err != nil {
		t.Fatal(err)
	}

	// The redrawn weights follow the target posterior's means, not the
	// zero-mean agent posterior
	for a, w := range agent.actWeights {
		want := 5.0 * float64(1-2*a)
		for j := 0; j < w.Len(); j++ {
			if math.Abs(w.AtVec(j)-want) > 1e-6 {
				t.Errorf("action %v: weight %v should be drawn from the "+
					"target posterior \n\twant(%v) \n\thave(%v)", a, j, want,
					w.AtVec(j))
			}
		}
	}

	// Neither posterior is touched by resampling
	for a := range agentBefore {
		if !mat.EqualApprox(agentBefore[a], agent.Posterior().Means()[a],
			tolerance) {
			t.Errorf("action %v: resampling changed the agent posterior "+
				"mean", a)
		}
		if !mat.EqualApprox(targetBefore[a],
			agent.TargetPosterior().Means()[a], tolerance) {
			t.Errorf("action %v: resampling changed the target posterior "+
				"mean", a)
		}
	}
}

// TestResetPosterior checks that the posterior reset restores the
// prior for both the agent and target posteriors
func TestResetPosterior(t *testing.T) {
	agent, err := New(3, 2, validConfig(Greedy), 13)
	if err != nil {
		t.Fatal(err)
	}

	// Train the agent posterior away from the prior, then reset
	featureSize := agent.Posterior().Features()
	phi := mat.NewDense(1, featureSize, nil)
	for j := 0; j < featureSize; j++ {
		phi.Set(0, j, 1.0)
	}
	err = agent.Posterior().Update(phi, mat.NewVecDense(1, []float64{2.0}),
		[]int{0})
	if err != nil {
		t.Fatal(err)
	}

	agent.ResetPosterior()
	for a, w := range agent.Posterior().Means() {
		for j := 0; j < w.Len(); j++ {
			if w.AtVec(j) != 0 {
				t.Errorf("action %v: reset posterior mean should be 0, "+
					"got %v", a, w.AtVec(j))
			}
		}
	}
}
