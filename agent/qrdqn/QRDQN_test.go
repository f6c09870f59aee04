package qrdqn

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

// TestQuantileMidpoints checks the fixed quantile midpoints
// τ̂ᵢ = (i + 0.5)/N
func TestQuantileMidpoints(t *testing.T) {
	midpoints := quantileMidpoints(4)
	want := []float64{0.125, 0.375, 0.625, 0.875}

	for i := range want {
		if math.Abs(midpoints[i]-want[i]) > tolerance {
			t.Errorf("midpoint %v should be %v, got %v", i, want[i],
				midpoints[i])
		}
	}
}

// TestBackupTargets checks the distributional backup
// r + γ(1 - done)·z', including the greedy action selection under the
// target network's expected value and the terminal collapse to the
// reward
func TestBackupTargets(t *testing.T) {
	batch, actions, quantiles := 2, 2, 2
	gamma := 0.99

	// Row 0: action 0 has quantiles [1, 3] (mean 2), action 1 has
	// [10, 0] (mean 5), so action 1 is greedy. Row 1 is terminal.
	targetZ := []float64{
		1, 3, 10, 0,
		7, 7, 0, 0,
	}
	rewards := []float64{1.0, 1.0}
	dones := []float64{0.0, 1.0}

	backup := backupTargets(targetZ, rewards, dones, batch, actions,
		quantiles, gamma)

	want := []float64{
		1 + 0.99*10, 1 + 0.99*0,
		1, 1,
	}
	for i := range want {
		if math.Abs(backup[i]-want[i]) > tolerance {
			t.Errorf("backup %v should be %v, got %v", i, want[i], backup[i])
		}
	}
}

// TestBackupTargetsTerminal checks that every target sample of a
// terminal transition collapses to the reward, independent of the
// target network's predictions
func TestBackupTargetsTerminal(t *testing.T) {
	quantiles := 4
	targetZ := []float64{100, -100, 42, 7}
	backup := backupTargets(targetZ, []float64{1.0}, []float64{1.0}, 1, 1,
		quantiles, 0.99)

	for j := 0; j < quantiles; j++ {
		if backup[j] != 1.0 {
			t.Errorf("terminal target sample %v should be 1, got %v", j,
				backup[j])
		}
	}
}

// TestQuantileWeightsPinball checks the signed pinball weights
// (τ̂ᵢ - 𝟙[δ < 0]) fed into the train graph when the Huber interval
// is 0, and that the resulting pairwise losses are non-negative
func TestQuantileWeightsPinball(t *testing.T) {
	tauHat := []float64{0.25, 0.75}
	backup := []float64{1.0, 3.0}    // Target samples j
	zSelected := []float64{2.0, 2.0} // Estimate quantiles i

	weights, quadMask, linSign, linMask := quantileWeights(backup, zSelected,
		tauHat, 1, 2, 0)
	if quadMask != nil || linSign != nil || linMask != nil {
		t.Error("pinball weights should have no Huber region masks")
	}

	// δ[i, j] = backup[j] - z[i] is [-1, 1] for both rows
	want := []float64{
		0.25 - 1, 0.25,
		0.75 - 1, 0.75,
	}
	for i := range want {
		if math.Abs(weights[i]-want[i]) > tolerance {
			t.Errorf("weight %v should be %v, got %v", i, want[i], weights[i])
		}
	}

	// Every pairwise pinball loss W·δ must be non-negative
	deltas := []float64{-1, 1, -1, 1}
	for i := range weights {
		if weights[i]*deltas[i] < 0 {
			t.Errorf("pairwise loss %v is negative: %v", i,
				weights[i]*deltas[i])
		}
	}
}

// TestQuantileWeightsHuber checks the absolute weights and the Huber
// region masks when the Huber interval is positive
func TestQuantileWeightsHuber(t *testing.T) {
	tauHat := []float64{0.25, 0.75}
	backup := []float64{5.0, 3.0}
	zSelected := []float64{2.0, 2.0}

	// δ[i, j] = [3, 1] for both rows with k = 1: |3| is in the linear
	// region, |1| is on the quadratic boundary
	weights, quadMask, linSign, linMask := quantileWeights(backup, zSelected,
		tauHat, 1, 2, 1.0)

	wantWeights := []float64{0.25, 0.25, 0.75, 0.75}
	wantQuad := []float64{0, 1, 0, 1}
	wantSign := []float64{1, 0, 1, 0}
	for i := range wantWeights {
		if math.Abs(weights[i]-wantWeights[i]) > tolerance {
			t.Errorf("weight %v should be %v, got %v", i, wantWeights[i],
				weights[i])
		}
		if quadMask[i] != wantQuad[i] {
			t.Errorf("quadratic mask %v should be %v, got %v", i,
				wantQuad[i], quadMask[i])
		}
		if linSign[i] != wantSign[i] {
			t.Errorf("linear sign %v should be %v, got %v", i, wantSign[i],
				linSign[i])
		}
		if linMask[i] != 1-wantQuad[i] {
			t.Errorf("linear mask %v should be %v, got %v", i,
				1-wantQuad[i], linMask[i])
		}
	}
}

// TestQuantileWeightsHuberNegative checks the linear sign for negative
// pairwise errors
func TestQuantileWeightsHuberNegative(t *testing.T) {
	tauHat := []float64{0.5}
	backup := []float64{-4.0}
	zSelected := []float64{0.0}

	// δ = -4 with k = 1: linear region with negative sign
	weights, _, linSign, linMask := quantileWeights(backup, zSelected, tauHat,
		1, 1, 1.0)

	if math.Abs(weights[0]-0.5) > tolerance {
		t.Errorf("weight should be |0.5 - 1| = 0.5, got %v", weights[0])
	}
	if linSign[0] != -1 {
		t.Errorf("linear sign should be -1, got %v", linSign[0])
	}
	if linMask[0] != 1 {
		t.Errorf("linear mask should be 1, got %v", linMask[0])
	}
}

// TestLossCoefficients checks the folded coefficients of the
// elementwise quadratic against the pinball and Huber losses evaluated
// directly
func TestLossCoefficients(t *testing.T) {
	tauHat := []float64{0.25}

	// Pinball: loss = (τ̂ - 𝟙[δ < 0])·δ. With δ = -2 the loss is
	// (0.25 - 1)·(-2) = 1.5
	quad, lin, offset := lossCoefficients([]float64{-2.0}, []float64{0.0},
		tauHat, 1, 1, 0)
	delta := -2.0
	loss := quad[0]*delta*delta + lin[0]*delta + offset[0]
	if math.Abs(loss-1.5) > tolerance {
		t.Errorf("pinball loss should be 1.5, got %v", loss)
	}

	// Huber linear region: loss = |τ̂ - 𝟙|·k·(|δ| - k/2). With δ = 3
	// and k = 1 the loss is 0.25·(3 - 0.5) = 0.625
	quad, lin, offset = lossCoefficients([]float64{3.0}, []float64{0.0},
		tauHat, 1, 1, 1.0)
	delta = 3.0
	loss = quad[0]*delta*delta + lin[0]*delta + offset[0]
	if math.Abs(loss-0.625) > tolerance {
		t.Errorf("huber linear loss should be 0.625, got %v", loss)
	}

	// Huber quadratic region: loss = |τ̂ - 𝟙|·½δ². With δ = -0.5 and
	// k = 1 the loss is 0.75·0.125 = 0.09375
	quad, lin, offset = lossCoefficients([]float64{-0.5}, []float64{0.0},
		tauHat, 1, 1, 1.0)
	delta = -0.5
	loss = quad[0]*delta*delta + lin[0]*delta + offset[0]
	if math.Abs(loss-0.09375) > tolerance {
		t.Errorf("huber quadratic loss should be 0.09375, got %v", loss)
	}
}

// TestZVariance checks the z-variance diagnostic and its normalized
// form, where the mean variance across actions is scaled to 1
func TestZVariance(t *testing.T) {
	// Action 0 has quantiles [0, 2] (variance 1), action 1 has [0, 4]
	// (variance 4)
	z := []float64{0, 2, 0, 4}

	raw := zVariance(z, 1, 2, 2, false)
	if math.Abs(raw-2.5) > tolerance {
		t.Errorf("z-variance should be 2.5, got %v", raw)
	}

	normalized := zVariance(z, 1, 2, 2, true)
	if math.Abs(normalized-1.0) > tolerance {
		t.Errorf("normalized z-variance should be 1, got %v", normalized)
	}
}

// TestTakenActions checks the recovery of action indices from one-hot
// action batches
func TestTakenActions(t *testing.T) {
	actions := []float64{
		0, 1, 0,
		0, 0, 1,
		1, 0, 0,
	}
	taken := takenActions(actions, 3, 3)
	want := []int{1, 2, 0}
	for i := range want {
		if taken[i] != want[i] {
			t.Errorf("row %v: taken action should be %v, got %v", i, want[i],
				taken[i])
		}
	}
}

// TestSelectQuantiles checks the extraction of the taken action's
// quantile locations from the batched forward pass
func TestSelectQuantiles(t *testing.T) {
	z := []float64{
		1, 2, 3, 4, // Row 0: action 0 then action 1
		5, 6, 7, 8, // Row 1
	}
	selected := selectQuantiles(z, []int{1, 0}, 2, 2, 2)

	want := []float64{3, 4, 5, 6}
	for i := range want {
		if selected[i] != want[i] {
			t.Errorf("selected quantile %v should be %v, got %v", i, want[i],
				selected[i])
		}
	}
}

// TestExpandMask checks the [batch, actions, quantiles] one-hot mask
// used to select the taken action's quantiles in the train graph
func TestExpandMask(t *testing.T) {
	mask := expandMask([]int{1, 0}, 2, 2)

	want := []float64{
		0, 0, 1, 1,
		1, 1, 0, 0,
	}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask %v should be %v, got %v", i, want[i], mask[i])
		}
	}
}

// validConfig returns a small but complete agent configuration
func validConfig() Config {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(err)
	}
	adam, err := solver.NewDefaultAdam(0.001, 2)
	if err != nil {
		panic(err)
	}

	return Config{
		PolicyLayers: []int{5},
		Biases:       []bool{true},
		Activations:  []*network.Activation{network.ReLU()},
		InitWFn:      init,
		Solver:       adam,

		Replay: expreplay.Config{
			RemoveMethod:      expreplay.Fifo,
			SampleMethod:      expreplay.Uniform,
			RemoveSize:        1,
			SampleSize:        2,
			MaxReplayCapacity: 16,
			MinReplayCapacity: 2,
		},

		NumQuantiles: 4,
		HuberOrder:   1.0,
		Gamma:        0.99,
		Epsilon:      0.1,

		Tau:                  1.0,
		TargetUpdateInterval: 4,
	}
}

// TestNew checks agent construction and the behaviour of an agent that
// has not yet taken a gradient step
func TestNew(t *testing.T) {
	agent, err := New(3, 2, validConfig(), 13)
	if err != nil {
		t.Fatal(err)
	}

	if !math.IsNaN(agent.Loss()) {
		t.Error("loss should be NaN before the first gradient step")
	}

	// Stepping with an unsampleable buffer is not an error
	if err := agent.Step(); err != nil {
		t.Errorf("step with an empty buffer should be ignored: %v", err)
	}

	// The agent should estimate one value per action
	obs := mat.NewVecDense(3, []float64{0.1, -0.2, 0.3})
	values, err := agent.Estimate(obs)
	if err != nil {
		t.Fatal(err)
	}
	if values.Len() != 2 {
		t.Errorf("estimate should have one value per action, got %v",
			values.Len())
	}

	// Actions are single-dimensional indices
	step := ts.New(ts.First, 0, 0.99, obs, 0)
	action, err := agent.SelectAction(step)
	if err != nil {
		t.Fatal(err)
	}
	if action.Len() != 1 {
		t.Errorf("action should be 1-dimensional, got %v", action.Len())
	}
	if a := action.AtVec(0); a != 0 && a != 1 {
		t.Errorf("action should be 0 or 1, got %v", a)
	}
}

// TestConfigValidate checks that invalid configurations are rejected
func TestConfigValidate(t *testing.T) {
	base := validConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}

	invalid := []func(*Config){
		func(c *Config) { c.NumQuantiles = 0 },
		func(c *Config) { c.HuberOrder = -1 },
		func(c *Config) { c.Gamma = 1.5 },
		func(c *Config) { c.Epsilon = -0.1 },
		func(c *Config) { c.Tau = 0 },
		func(c *Config) { c.TargetUpdateInterval = 0 },
		func(c *Config) { c.Solver = nil },
		func(c *Config) { c.InitWFn = nil },
		func(c *Config) { c.Biases = []bool{true} },
	}

	for i, corrupt := range invalid {
		config := validConfig()
		corrupt(&config)
		if err := config.Validate(); err == nil {
			t.Errorf("corruption %v: expected validation error", i)
		}
	}
}
