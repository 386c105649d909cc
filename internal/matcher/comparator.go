// Package matcher scores query embeddings against gallery candidates.
//
// Every comparison runs the same pipeline: both vectors are validated against
// the configured dimension, a raw similarity is computed with the configured
// metric, it is scaled by a quality weight, and the adjusted similarity is
// compared to the match threshold. Vectors that fail validation produce a
// non-matching Result with StatusInvalidVector so that a single bad candidate
// never aborts a batch.
package matcher

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/logger"
)

// MaxDynamicThreshold caps thresholds proposed by DynamicThreshold.
const MaxDynamicThreshold = 0.95

var errNonFinite = errors.New("result is NaN or infinite")

// Comparator is safe for concurrent use; it holds no mutable state.
type Comparator struct {
	dimension int
	threshold float64
	metric    embedding.Metric
	quality   config.QualityPolicy
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Comparator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Comparator) { c.log = logger.OrNop(l) }
}

// New creates a Comparator from a validated matcher configuration.
func New(cfg config.Matcher, opts ...Option) *Comparator {
	c := &Comparator{
		dimension: cfg.Dimension(),
		threshold: cfg.MatchThreshold(),
		metric:    cfg.Metric(),
		quality:   cfg.Quality(),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Comparator) Threshold() float64       { return c.threshold }
func (c *Comparator) Metric() embedding.Metric { return c.metric }
func (c *Comparator) Dimension() int           { return c.dimension }

// Compare scores candidate against query. Invalid vectors yield a
// StatusInvalidVector result and a nil error; a *ComputationError is returned
// only when arithmetic on valid vectors goes wrong.
func (c *Comparator) Compare(query, candidate embedding.Embedding) (Result, error) {
	if err := query.Validate(c.dimension); err != nil {
		return c.invalid(candidate.Identity, "query: "+err.Error()), nil
	}
	if err := candidate.Validate(c.dimension); err != nil {
		return c.invalid(candidate.Identity, "candidate: "+err.Error()), nil
	}

	raw, distance, err := c.metric.Similarity(query.Values, candidate.Values)
	if err != nil {
		return Result{}, &ComputationError{Stage: "similarity", Err: err}
	}
	if !finite(raw) || math.IsNaN(distance) {
		return Result{}, &ComputationError{Stage: "similarity", Err: errNonFinite}
	}

	weight := qualityWeight(c.quality, query, candidate)
	if !finite(weight) {
		return Result{}, &ComputationError{Stage: "quality weighting", Err: errNonFinite}
	}

	adjusted := raw * weight
	if !finite(adjusted) {
		return Result{}, &ComputationError{Stage: "adjusted similarity", Err: errNonFinite}
	}

	return Result{
		Identity:      candidate.Identity,
		Similarity:    adjusted,
		RawSimilarity: raw,
		QualityWeight: weight,
		Distance:      distance,
		IsMatch:       adjusted >= c.threshold,
		Metric:        c.metric,
		Status:        StatusOK,
	}, nil
}

func (c *Comparator) invalid(identity, reason string) Result {
	c.log.Debug("rejected vector", zap.String("identity", identity), zap.String("reason", reason))
	return Result{
		Identity: identity,
		Distance: math.Inf(1),
		Metric:   c.metric,
		Status:   StatusInvalidVector,
		Reason:   reason,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c *Comparator) compareAll(query embedding.Embedding, candidates []embedding.Embedding) ([]Result, error) {
	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		r, err := c.Compare(query, cand)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// best returns the highest-similarity result; the earliest wins ties.
func best(results []Result) *Result {
	if len(results) == 0 {
		return nil
	}
	top := results[0]
	for _, r := range results[1:] {
		if r.Similarity > top.Similarity {
			top = r
		}
	}
	return &top
}

func sortBySimilarity(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
}

// FindBestMatch returns the highest-scoring candidate, or nil when there are
// no candidates. The returned result may be a non-match.
func (c *Comparator) FindBestMatch(query embedding.Embedding, candidates []embedding.Embedding) (*Result, error) {
	results, err := c.compareAll(query, candidates)
	if err != nil {
		return nil, err
	}
	return best(results), nil
}

// TopMatches returns up to k results sorted by descending similarity. Equal
// scores keep the order of candidates.
func (c *Comparator) TopMatches(query embedding.Embedding, candidates []embedding.Embedding, k int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	results, err := c.compareAll(query, candidates)
	if err != nil {
		return nil, err
	}
	sortBySimilarity(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// BatchCompare scores every candidate. With returnAll unset only matches are
// kept in Results; Best is the highest-scoring result either way.
func (c *Comparator) BatchCompare(query embedding.Embedding, candidates []embedding.Embedding, returnAll bool) (BatchResult, error) {
	start := c.now()

	results, err := c.compareAll(query, candidates)
	if err != nil {
		return BatchResult{}, err
	}
	top := best(results)

	if !returnAll {
		results = slices.DeleteFunc(results, func(r Result) bool { return !r.IsMatch })
	}
	sortBySimilarity(results)

	return BatchResult{
		Results: results,
		Best:    top,
		Elapsed: c.now().Sub(start),
	}, nil
}

// Verify reports whether a and b belong to the same identity.
func (c *Comparator) Verify(a, b embedding.Embedding) (bool, error) {
	r, err := c.Compare(a, b)
	if err != nil {
		return false, err
	}
	return r.IsMatch, nil
}

// DynamicThreshold proposes a per-identity threshold from the pairwise
// similarities of several samples of that identity: mean + 2 standard
// deviations, never below the configured threshold and never above
// MaxDynamicThreshold. It falls back to the configured threshold when there
// is nothing to estimate from.
func (c *Comparator) DynamicThreshold(candidates []embedding.Embedding) float64 {
	if len(candidates) < 2 {
		c.log.Debug("dynamic threshold fallback", zap.String("reason", "fewer than 2 candidates"),
			zap.Int("candidates", len(candidates)))
		return c.threshold
	}

	var sims []float64
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			r, err := c.Compare(candidates[i], candidates[j])
			if err != nil {
				c.log.Debug("dynamic threshold fallback", zap.Error(err))
				return c.threshold
			}
			if r.Status != StatusOK {
				continue
			}
			sims = append(sims, r.Similarity)
		}
	}
	if len(sims) == 0 {
		c.log.Debug("dynamic threshold fallback", zap.String("reason", "no valid pairs"))
		return c.threshold
	}

	var mean float64
	for _, s := range sims {
		mean += s
	}
	mean /= float64(len(sims))

	var variance float64
	for _, s := range sims {
		variance += (s - mean) * (s - mean)
	}
	stddev := math.Sqrt(variance / float64(len(sims)))

	proposed := max(c.threshold, min(mean+2*stddev, MaxDynamicThreshold))
	c.log.Debug("dynamic threshold",
		zap.Int("pairs", len(sims)),
		zap.Float64("mean", mean),
		zap.Float64("stddev", stddev),
		zap.Float64("threshold", proposed))
	return proposed
}
