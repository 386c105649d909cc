package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when two vectors have different lengths,
	// or a vector does not have the configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidVector is returned for vectors containing NaN/Inf values or
	// with a norm too close to zero to carry a direction.
	ErrInvalidVector = errors.New("invalid vector")
)

// DimensionMismatchError carries the lengths involved in a mismatch.
// errors.Is(err, ErrDimensionMismatch) reports true for it.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func checkLengths(a, b []float32) error {
	if len(a) != len(b) {
		return &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}
	return nil
}
