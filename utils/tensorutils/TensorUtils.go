// Package tensorutils implements utility functions for working with
// tensors and Gorgonia values
package tensorutils

import (
	G "gorgonia.org/gorgonia"
)

// Float64s returns the data of a Gorgonia value as a slice of
// float64. Scalar values are returned as a slice of length 1.
func Float64s(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case float64:
		return []float64{data}
	default:
		return nil
	}
}
