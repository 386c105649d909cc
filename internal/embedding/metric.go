package embedding

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects how two embeddings are compared.
type Metric string

// Supported metrics.
const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricManhattan Metric = "manhattan"
)

// euclideanMaxDistance is the largest Euclidean distance between two unit vectors.
const euclideanMaxDistance = 2.0

// ParseMetric parses a metric name (case-insensitive).
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricCosine, MetricEuclidean, MetricManhattan:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q (want cosine, euclidean or manhattan)", s)
	}
}

// String returns the metric name.
func (m Metric) String() string {
	return string(m)
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricManhattan:
		return true
	}
	return false
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// Returns 0 if either vector has a norm below Epsilon.
func CosineSimilarity(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	normA, normB = math.Sqrt(normA), math.Sqrt(normB)
	if normA < Epsilon || normB < Epsilon {
		return 0, nil
	}

	similarity := dotProduct / (normA * normB)
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// ManhattanDistance computes the L1 distance between two vectors.
func ManhattanDistance(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum, nil
}

// DistanceToSimilarity maps a distance into [0, 1] as max(0, 1 - distance/maxDistance).
func DistanceToSimilarity(distance, maxDistance float64) float64 {
	if maxDistance <= 0 {
		return 0
	}
	return math.Max(0, 1-distance/maxDistance)
}

// MaxDistance returns the normalization bound used to turn a distance of this
// metric into a similarity for vectors of the given dimension.
func (m Metric) MaxDistance(dim int) float64 {
	switch m {
	case MetricEuclidean:
		return euclideanMaxDistance
	case MetricManhattan:
		return float64(dim)
	default:
		return 2 // cosine distance range
	}
}

// Distance returns the metric-appropriate distance between a and b.
// For cosine this is the cosine distance 1 - similarity, in [0, 2].
func (m Metric) Distance(a, b []float32) (float64, error) {
	switch m {
	case MetricCosine:
		sim, err := CosineSimilarity(a, b)
		if err != nil {
			return 0, err
		}
		return 1 - sim, nil
	case MetricEuclidean:
		return EuclideanDistance(a, b)
	case MetricManhattan:
		return ManhattanDistance(a, b)
	default:
		return 0, fmt.Errorf("unknown metric %q", m)
	}
}

// Similarity returns the similarity of a and b in [0, 1] together with the
// metric-appropriate distance. Negative cosine values are clamped to 0.
func (m Metric) Similarity(a, b []float32) (similarity, distance float64, err error) {
	switch m {
	case MetricCosine:
		raw, err := CosineSimilarity(a, b)
		if err != nil {
			return 0, 0, err
		}
		return math.Max(0, raw), 1 - raw, nil
	case MetricEuclidean, MetricManhattan:
		d, err := m.Distance(a, b)
		if err != nil {
			return 0, 0, err
		}
		return DistanceToSimilarity(d, m.MaxDistance(len(a))), d, nil
	default:
		return 0, 0, fmt.Errorf("unknown metric %q", m)
	}
}
