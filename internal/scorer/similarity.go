package scorer

import "math"

// dotProduct computes the dot product of two vectors.
func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// norm computes the L2 norm of a vector.
func norm(v []float32) float64 {
	return math.Sqrt(dotProduct(v, v))
}

// cosineSimilarity returns 1 for identical directions, 0 for perpendicular
// or degenerate (zero-length or mismatched) vectors, -1 for opposite.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := norm(a)
	normB := norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct(a, b) / (normA * normB)
}
