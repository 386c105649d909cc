package config

import (
	_ "embed"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

//go:embed quality.yaml
var qualityYAML []byte

// QualityPolicy holds the coefficients of the comparator's quality weighting.
// The defaults are a tuned heuristic, not a derived constant set.
type QualityPolicy struct {
	Base             float64    `yaml:"base"`
	QualityCoef      float64    `yaml:"quality_coef"`
	NormCoef         float64    `yaml:"norm_coef"`
	DistributionCoef float64    `yaml:"distribution_coef"`
	MinWeight        float64    `yaml:"min_weight"`
	MaxWeight        float64    `yaml:"max_weight"`
	Deadbands        []Deadband `yaml:"deadbands"`
	Fallback         float64    `yaml:"fallback"`
}

// Deadband maps standard deviations below Below to Score.
type Deadband struct {
	Below float64 `yaml:"below"`
	Score float64 `yaml:"score"`
}

// DefaultQualityPolicy returns the policy embedded in quality.yaml.
func DefaultQualityPolicy() QualityPolicy {
	var p QualityPolicy
	if err := yaml.Unmarshal(qualityYAML, &p); err != nil {
		// embedded file, can only fail on a broken build
		panic("failed to unmarshal embedded quality.yaml: " + err.Error())
	}
	return p
}

// DistributionScore looks up the score for a vector with the given standard deviation.
func (p QualityPolicy) DistributionScore(stddev float64) float64 {
	for _, d := range p.Deadbands {
		if stddev < d.Below {
			return d.Score
		}
	}
	return p.Fallback
}

func (p QualityPolicy) validate() []FieldError {
	var problems []FieldError
	coefs := []struct {
		field string
		value float64
	}{
		{"quality.base", p.Base},
		{"quality.quality_coef", p.QualityCoef},
		{"quality.norm_coef", p.NormCoef},
		{"quality.distribution_coef", p.DistributionCoef},
		{"quality.min_weight", p.MinWeight},
		{"quality.max_weight", p.MaxWeight},
	}
	for _, c := range coefs {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			problems = append(problems, FieldError{Field: c.field, Message: "must be a finite number"})
		}
	}
	if p.MinWeight < 0 || p.MaxWeight <= 0 || p.MaxWeight > 1 || p.MinWeight > p.MaxWeight {
		problems = append(problems, FieldError{
			Field:   "quality.min_weight/max_weight",
			Message: fmt.Sprintf("must satisfy 0 <= min (%g) <= max (%g) <= 1 with max > 0", p.MinWeight, p.MaxWeight),
		})
	}
	for i, d := range p.Deadbands {
		if i > 0 && d.Below <= p.Deadbands[i-1].Below {
			problems = append(problems, FieldError{
				Field:   fmt.Sprintf("quality.deadbands[%d]", i),
				Message: "bounds must be strictly increasing",
			})
		}
		if d.Score < 0 || d.Score > 1 {
			problems = append(problems, FieldError{
				Field:   fmt.Sprintf("quality.deadbands[%d].score", i),
				Message: fmt.Sprintf("must be in [0, 1], got %g", d.Score),
			})
		}
	}
	if p.Fallback < 0 || p.Fallback > 1 {
		problems = append(problems, FieldError{
			Field:   "quality.fallback",
			Message: fmt.Sprintf("must be in [0, 1], got %g", p.Fallback),
		})
	}
	return problems
}
