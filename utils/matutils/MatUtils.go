// Package matutils implements utility function for working with mat.Matrix
// structs
package matutils

import (
	"gonum.org/v1/gonum/mat"
)

// MaxVec finds and returns the index of the maximum value in a vector.
// If multiple equal max values exist, only the first one is returned.
func MaxVec(values mat.Vector) int {
	max, idx := values.AtVec(0), 0

	for i := 0; i < values.Len(); i++ {
		if values.AtVec(i) > max {
			max = values.AtVec(i)
			idx = i
		}
	}
	return idx
}

// OneHot returns a one-hot vector of the given length with a 1.0 at
// the given index.
func OneHot(index, length int) *mat.VecDense {
	vec := mat.NewVecDense(length, nil)
	vec.SetVec(index, 1.0)
	return vec
}
