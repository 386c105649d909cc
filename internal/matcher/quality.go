package matcher

import (
	"math"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/embedding"
)

// qualityWeight blends extraction quality, normalization health and feature
// spread of both embeddings into a multiplier within the policy's bounds.
func qualityWeight(p config.QualityPolicy, a, b embedding.Embedding) float64 {
	qualityAvg := (a.EffectiveQuality() + b.EffectiveQuality()) / 2
	normHealth := (normScore(a.Values) + normScore(b.Values)) / 2
	distributionAvg := (p.DistributionScore(embedding.StdDev(a.Values)) +
		p.DistributionScore(embedding.StdDev(b.Values))) / 2

	w := p.Base + p.QualityCoef*qualityAvg + p.NormCoef*normHealth + p.DistributionCoef*distributionAvg
	return min(max(w, p.MinWeight), p.MaxWeight)
}

// normScore is 1 for a unit vector and falls off linearly with |norm - 1|.
func normScore(v []float32) float64 {
	return math.Max(0, 1-math.Abs(embedding.L2Norm(v)-1))
}
