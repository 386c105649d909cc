package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kozaktomas/face-gallery/internal/embedding"
)

// ErrConfigurationInvalid is matched by every *ValidationError.
var ErrConfigurationInvalid = errors.New("invalid configuration")

// FieldError describes one violated configuration constraint.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every problem found while constructing a configuration.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrConfigurationInvalid
}

// MatcherSettings is the raw, unvalidated matcher configuration as read from
// the environment or a config file. Use NewMatcher to turn it into a Matcher.
type MatcherSettings struct {
	Dimension               int            `yaml:"dimension"`
	Capacity                int            `yaml:"capacity"`
	MatchThreshold          float64        `yaml:"match_threshold"`
	Metric                  string         `yaml:"metric"`
	DetectionConfidenceGate float64        `yaml:"detection_confidence_gate"`
	MinFaceSize             int            `yaml:"min_face_size"`
	MaxFaceSize             int            `yaml:"max_face_size"`
	Debug                   bool           `yaml:"debug"`
	Quality                 *QualityPolicy `yaml:"quality"` // nil uses DefaultQualityPolicy
}

// DefaultMatcherSettings returns settings suited to 512-d ArcFace embeddings.
// Quality is seeded with the embedded policy so that a config file only
// replaces the coefficients it names.
func DefaultMatcherSettings() MatcherSettings {
	quality := DefaultQualityPolicy()
	return MatcherSettings{
		Dimension:               512,
		Capacity:                100,
		MatchThreshold:          0.6,
		Metric:                  string(embedding.MetricCosine),
		DetectionConfidenceGate: 0.7,
		MinFaceSize:             35,
		MaxFaceSize:             4096,
		Quality:                 &quality,
	}
}

// Matcher is a validated matcher configuration. The zero value is not usable;
// values are produced only by NewMatcher.
type Matcher struct {
	dimension      int
	capacity       int
	threshold      float64
	metric         embedding.Metric
	confidenceGate float64
	minFaceSize    int
	maxFaceSize    int
	debug          bool
	quality        QualityPolicy
}

// NewMatcher validates settings and returns a Matcher, or a *ValidationError
// listing every violated constraint.
func NewMatcher(s MatcherSettings) (Matcher, error) {
	var problems []FieldError
	add := func(field, format string, args ...any) {
		problems = append(problems, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if s.Dimension <= 0 {
		add("dimension", "must be > 0, got %d", s.Dimension)
	}
	if s.Capacity <= 0 {
		add("capacity", "must be > 0, got %d", s.Capacity)
	}
	if !inUnitRange(s.MatchThreshold) {
		add("match_threshold", "must be in [0, 1], got %g", s.MatchThreshold)
	}
	metric, err := embedding.ParseMetric(s.Metric)
	if err != nil {
		add("metric", "%v", err)
	}
	if !inUnitRange(s.DetectionConfidenceGate) {
		add("detection_confidence_gate", "must be in [0, 1], got %g", s.DetectionConfidenceGate)
	}
	if s.MinFaceSize <= 0 {
		add("min_face_size", "must be > 0, got %d", s.MinFaceSize)
	}
	if s.MaxFaceSize <= s.MinFaceSize {
		add("max_face_size", "must be greater than min_face_size (%d), got %d", s.MinFaceSize, s.MaxFaceSize)
	}

	quality := DefaultQualityPolicy()
	if s.Quality != nil {
		quality = *s.Quality
		quality.Deadbands = slices.Clone(quality.Deadbands)
	}
	problems = append(problems, quality.validate()...)

	if len(problems) > 0 {
		return Matcher{}, &ValidationError{Problems: problems}
	}

	return Matcher{
		dimension:      s.Dimension,
		capacity:       s.Capacity,
		threshold:      s.MatchThreshold,
		metric:         metric,
		confidenceGate: s.DetectionConfidenceGate,
		minFaceSize:    s.MinFaceSize,
		maxFaceSize:    s.MaxFaceSize,
		debug:          s.Debug,
		quality:        quality,
	}, nil
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func (m Matcher) Dimension() int                   { return m.dimension }
func (m Matcher) Capacity() int                    { return m.capacity }
func (m Matcher) MatchThreshold() float64          { return m.threshold }
func (m Matcher) Metric() embedding.Metric         { return m.metric }
func (m Matcher) DetectionConfidenceGate() float64 { return m.confidenceGate }
func (m Matcher) MinFaceSize() int                 { return m.minFaceSize }
func (m Matcher) MaxFaceSize() int                 { return m.maxFaceSize }
func (m Matcher) Debug() bool                      { return m.debug }

// Quality returns a copy of the quality-weighting policy.
func (m Matcher) Quality() QualityPolicy {
	q := m.quality
	q.Deadbands = slices.Clone(q.Deadbands)
	return q
}
