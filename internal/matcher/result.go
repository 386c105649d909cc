package matcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-gallery/internal/embedding"
)

// Status tags soft classification failures. A comparison that could not be
// scored is still a Result, never an error.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidVector
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidVector:
		return "invalid_vector"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of comparing a query against one candidate.
type Result struct {
	Identity      string
	Similarity    float64 // quality-adjusted, in [0, 1]
	RawSimilarity float64
	QualityWeight float64
	Distance      float64 // metric distance, +Inf for invalid vectors
	IsMatch       bool
	Metric        embedding.Metric
	Status        Status
	Reason        string // why the comparison was rejected, empty for StatusOK
}

// BatchResult is returned by BatchCompare.
type BatchResult struct {
	Results []Result
	Best    *Result
	Elapsed time.Duration
}

// ErrVectorComputation is matched by every *ComputationError.
var ErrVectorComputation = errors.New("vector computation failed")

// ComputationError reports an arithmetic failure after both vectors passed
// validation, e.g. a NaN produced by the quality policy.
type ComputationError struct {
	Stage string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("vector computation failed during %s: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

func (e *ComputationError) Is(target error) bool {
	return target == ErrVectorComputation
}
