package core

import (
	"fmt"
	"math"
)

// DotProduct calculates dot product between two vectors
func DotProduct(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions must match: %d != %d", len(a), len(b))
	}

	var product float32
	for i := range a {
		product += a[i] * b[i]
	}

	return product, nil
}

// SquaredL2 calculates the squared Euclidean distance between two vectors.
// Lower values indicate higher similarity.
func SquaredL2(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions must match: %d != %d", len(a), len(b))
	}

	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}

	return sum, nil
}

// Distance calculates the distance of b from a in the given space.
// For inner product the distance is 1 - dot, so ascending distance means
// descending similarity in both spaces.
func Distance(space Space, a, b []float32) (float32, error) {
	switch space {
	case SpaceL2:
		return SquaredL2(a, b)
	case SpaceIP:
		dot, err := DotProduct(a, b)
		return 1 - dot, err
	default:
		return 0, fmt.Errorf("unsupported distance space: %s", space)
	}
}

// Norm returns the Euclidean length of a vector
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) {
	n := Norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
