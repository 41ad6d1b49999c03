// Package vecmath holds the pure vector operations shared by anchor
// construction and selection. All vectors in one computation come from the
// same embedding model, so a dimension mismatch is a programming error and
// panics rather than returning an error.
package vecmath

import (
	"fmt"
	"math"
)

// Normalize returns v scaled to unit L2 norm. A zero vector is returned
// unchanged; callers must not feed all-zero vectors into anchor math.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Dot returns the dot product of a and b.
func Dot(a, b []float32) float64 {
	checkDim(a, b)
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// CosineSimilarity returns the cosine of the angle between a and b. Inputs
// are normalized before every comparison in this system, so this equals Dot
// for unit vectors; non-unit inputs are handled for completeness.
func CosineSimilarity(a, b []float32) float64 {
	checkDim(a, b)
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CosineDistance returns 1 - CosineSimilarity(a, b).
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

func checkDim(a, b []float32) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vecmath: dimension mismatch: %d vs %d", len(a), len(b)))
	}
}
