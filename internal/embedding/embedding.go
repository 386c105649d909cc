// Package embedding defines the face embedding data model and the vector
// algebra used to compare embeddings.
package embedding

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// NeutralQuality is used when an embedding carries no quality estimate.
// It does not penalize the match score.
const NeutralQuality = 1.0

// Embedding is an identity label with its fixed-length face vector.
type Embedding struct {
	Identity   string
	Values     []float32
	Quality    float64 // extraction confidence in [0, 1], meaningful only if HasQuality
	HasQuality bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New creates an embedding without a quality estimate.
func New(identity string, values []float32) Embedding {
	now := time.Now()
	return Embedding{
		Identity:  identity,
		Values:    values,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithQuality returns a copy of e carrying the given quality score.
func (e Embedding) WithQuality(q float64) Embedding {
	e.Quality = q
	e.HasQuality = true
	return e
}

// EffectiveQuality returns the quality clamped to [0, 1], or NeutralQuality if unset.
func (e Embedding) EffectiveQuality() float64 {
	if !e.HasQuality || math.IsNaN(e.Quality) {
		return NeutralQuality
	}
	return min(max(e.Quality, 0), 1)
}

// Dimension returns the vector length.
func (e Embedding) Dimension() int {
	return len(e.Values)
}

// Clone returns a deep copy of e.
func (e Embedding) Clone() Embedding {
	e.Values = slices.Clone(e.Values)
	return e
}

// Validate checks the vector against the configured dimension, rejects
// non-finite values and vectors with a norm below Epsilon.
func (e Embedding) Validate(dim int) error {
	return ValidateValues(e.Values, dim)
}

// ValidateValues applies the Embedding invariants to a raw vector.
func ValidateValues(values []float32, dim int) error {
	if len(values) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(values)}
	}
	if !AllFinite(values) {
		return fmt.Errorf("%w: contains NaN or infinite values", ErrInvalidVector)
	}
	if L2Norm(values) < Epsilon {
		return fmt.Errorf("%w: norm is below %g", ErrInvalidVector, Epsilon)
	}
	return nil
}
