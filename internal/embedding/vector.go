package embedding

import "math"

// Epsilon is the smallest L2 norm a vector may have and still be compared.
const Epsilon = 1e-6

// Dot computes the dot product of two equal-length vectors.
func Dot(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// L2Norm returns the Euclidean length of v.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// L1Norm returns the sum of absolute values of v.
func L1Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += math.Abs(float64(x))
	}
	return sum
}

// Normalize returns an L2-normalized copy of v.
// Returns false if v has (near) zero norm.
func Normalize(v []float32) ([]float32, bool) {
	norm := L2Norm(v)
	if norm < Epsilon || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// AllFinite reports whether v contains no NaN or infinite values.
func AllFinite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// StdDev returns the population standard deviation of the values in v.
func StdDev(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	var mean float64
	for _, x := range v {
		mean += float64(x)
	}
	mean /= float64(len(v))

	var variance float64
	for _, x := range v {
		d := float64(x) - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(v)))
}
