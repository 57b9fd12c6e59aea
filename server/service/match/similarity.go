package match

import "math"

// CosineSimilarity computes the cosine similarity between two embedding
// vectors, in [-1, 1].
//
// Degenerate inputs (empty vectors, mismatched lengths, zero magnitude)
// return NaN instead of an error: callers treat NaN as "no match possible"
// and skip the pair.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.NaN()
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return math.NaN()
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
