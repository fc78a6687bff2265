// Package embedding caches embedding vectors and builds the interest profile used for semantic ranking.
package embedding

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity of a and b in [-1, 1]. Zero-norm or mismatched
// vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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
	return math.Max(-1, math.Min(1, dot/denom))
}

// Normalize performs L2 normalization on v in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Mean returns the element-wise average of vectors, which must share a dimension.
func Mean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("mean of zero vectors")
	}
	dims := len(vectors[0])
	sum := make([]float64, dims)
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("vector %d has %d dims, want %d", i, len(v), dims)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}
	out := make([]float32, dims)
	for j := range sum {
		out[j] = float32(sum[j] / float64(len(vectors)))
	}
	return out, nil
}
