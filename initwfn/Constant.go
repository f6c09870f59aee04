package initwfn

import G "gorgonia.org/gorgonia"

// NewZeroes returns a new InitWFn that initializes all weights to 0
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

// ZeroesConfig implements a configuration of a weight initialization
// algorithm that sets all weights to 0
type ZeroesConfig struct{}

// Type returns the type of the InitWFn that the Config describes
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create returns the Gorgonia InitWFn that the Config describes
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// NewOnes returns a new InitWFn that initializes all weights to 1
func NewOnes() (*InitWFn, error) {
	return newInitWFn(OnesConfig{})
}

// OnesConfig implements a configuration of a weight initialization
// algorithm that sets all weights to 1
type OnesConfig struct{}

// Type returns the type of the InitWFn that the Config describes
func (o OnesConfig) Type() Type {
	return Ones
}

// Create returns the Gorgonia InitWFn that the Config describes
func (o OnesConfig) Create() G.InitWFn {
	return G.Ones()
}

// NewConstant returns a new InitWFn that initializes all weights to a
// constant value
func NewConstant(value float64) (*InitWFn, error) {
	config := ConstantConfig{
		Value: value,
	}

	return newInitWFn(config)
}

// ConstantConfig implements a configuration of a weight initialization
// algorithm that sets all weights to a constant value
type ConstantConfig struct {
	Value float64
}

// Type returns the type of the InitWFn that the Config describes
func (c ConstantConfig) Type() Type {
	return Constant
}

// Create returns the Gorgonia InitWFn that the Config describes
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}
