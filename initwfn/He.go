package initwfn

import G "gorgonia.org/gorgonia"

// NewHeU returns a new He uniform InitWFn
func NewHeU(gain float64) (*InitWFn, error) {
	config := HeUConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// HeUConfig implements a configuration of the He uniform weight
// initialization algorithm
type HeUConfig struct {
	Gain float64
}

// Type returns the type of the InitWFn that the Config describes
func (h HeUConfig) Type() Type {
	return HeU
}

// Create returns the Gorgonia InitWFn that the Config describes
func (h HeUConfig) Create() G.InitWFn {
	return G.HeU(h.Gain)
}

// NewHeN returns a new He normal InitWFn
func NewHeN(gain float64) (*InitWFn, error) {
	config := HeNConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// HeNConfig implements a configuration of the He normal weight
// initialization algorithm
type HeNConfig struct {
	Gain float64
}

// Type returns the type of the InitWFn that the Config describes
func (h HeNConfig) Type() Type {
	return HeN
}

// Create returns the Gorgonia InitWFn that the Config describes
func (h HeNConfig) Create() G.InitWFn {
	return G.HeN(h.Gain)
}
