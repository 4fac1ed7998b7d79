// Package vector provides cosine similarity scoring and top-K ranking over
// catalog snapshots.
package vector

import "math"

// Cosine returns the cosine similarity dot(a,b)/(|a|*|b|) in [-1,1].
// A zero-norm vector or a length mismatch yields 0 rather than dividing by zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Score maps cosine similarity to [0,1] via (cos+1)/2. A pair involving a
// zero-norm vector scores exactly 0, the defined minimum.
func Score(a, b []float32) float64 {
	if isZeroNorm(a) || isZeroNorm(b) {
		return 0
	}
	return (Cosine(a, b) + 1) / 2
}

func isZeroNorm(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
