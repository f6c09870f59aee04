package initwfn

import G "gorgonia.org/gorgonia"

// NewGlorotU returns a new Glorot uniform InitWFn
func NewGlorotU(gain float64) (*InitWFn, error) {
	config := GlorotUConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// GlorotUConfig implements a configuration of the Glorot uniform
// weight initialization algorithm
type GlorotUConfig struct {
	Gain float64
}

// Type returns the type of the InitWFn that the Config describes
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the Gorgonia InitWFn that the Config describes
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// NewGlorotN returns a new Glorot normal InitWFn
func NewGlorotN(gain float64) (*InitWFn, error) {
	config := GlorotNConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// GlorotNConfig implements a configuration of the Glorot normal
// weight initialization algorithm
type GlorotNConfig struct {
	Gain float64
}

// Type returns the type of the InitWFn that the Config describes
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the Gorgonia InitWFn that the Config describes
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}
