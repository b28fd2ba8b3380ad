package services

import "math"

// L2Normalize scales a vector to unit length. A zero or empty vector is
// returned unchanged.
func L2Normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// MeanPool computes the weighted mean of equal-length vectors. Weights are
// normalized to sum to 1; non-positive weights count as zero. Vectors whose
// length differs from the first are skipped. Returns nil when nothing
// contributes.
func MeanPool(vectors [][]float32, weights []float64) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil
	}

	var totalWeight float64
	for i := range vectors {
		if len(vectors[i]) != dim {
			continue
		}
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		if w > 0 {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		return nil
	}

	acc := make([]float64, dim)
	for i, vec := range vectors {
		if len(vec) != dim {
			continue
		}
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		if w <= 0 {
			continue
		}
		scaled := w / totalWeight
		for j, v := range vec {
			acc[j] += float64(v) * scaled
		}
	}

	out := make([]float32, dim)
	for j, v := range acc {
		out[j] = float32(v)
	}
	return out
}
