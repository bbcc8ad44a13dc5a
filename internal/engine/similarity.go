package engine

import "math"

// Cosine computes cosine similarity between two vectors: dot(a,b)/(|a|·|b|).
// Returns 0 when the vectors differ in length or either has zero magnitude,
// which excludes the pair from threshold-based selection.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
