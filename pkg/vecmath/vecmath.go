// Package vecmath provides the vector arithmetic shared by clustering and retrieval
// (dot product, norm, cosine and Euclidean distance, L2 normalization).
package vecmath

import (
	"math"
)

// Float is the element type accepted by the distance helpers.
type Float interface {
	~float32 | ~float64
}

// Dot returns the dot product of a and b over their common prefix.
func Dot[T Float](a, b []T) float64 {
	n := min(len(a), len(b))

	var sum float64
	for i := range n {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// Norm returns the Euclidean length of v.
func Norm[T Float](v []T) float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}

	return math.Sqrt(sumSquares)
}

// CosineDistance calculates 1 - cosine_similarity (so smaller is more similar).
// The result is in [0, 2]. A zero vector (or mismatched dimensions) is at distance 1 from everything.
func CosineDistance[T Float](a, b []T) float64 {
	if len(a) != len(b) {
		return 1.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))

	// Rounding can push |similarity| slightly past 1.
	similarity = math.Max(-1, math.Min(1, similarity))

	return 1.0 - similarity
}

// EuclideanDistance returns the L2 distance between a and b.
// Mismatched dimensions yield +Inf so such candidates sort last.
func EuclideanDistance[T Float](a, b []T) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return math.Sqrt(sum)
}

// NormalizeL2 scales vector to unit length in place. A zero vector is left unchanged.
func NormalizeL2(vector []float32) {
	magnitude := Norm(vector)
	if magnitude == 0 {
		return
	}

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// Mean returns the coordinate-wise mean of the vectors at the given indices.
// dim is the output dimension; indices must be non-empty.
func Mean(vectors [][]float32, indices []int, dim int) []float32 {
	sums := make([]float64, dim)
	for _, idx := range indices {
		for d, x := range vectors[idx] {
			if d < dim {
				sums[d] += float64(x)
			}
		}
	}

	out := make([]float32, dim)
	for d := range sums {
		out[d] = float32(sums[d] / float64(len(indices)))
	}

	return out
}
