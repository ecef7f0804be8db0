package aggregator

import (
	"math"
	"math/rand"
)

// Scoring weights and the published-score jitter amplitude. The jitter is
// symmetric, added after the weighted sum is clamped, and the result is
// clamped again, so the total spread is at most 2×JitterAmplitude.
const (
	WeightML        = 0.7
	WeightRule      = 0.3
	JitterAmplitude = 0.01
)

// Scorer fuses the two source signals into the hybrid score.
type Scorer struct {
	jitter func() float64
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithJitter replaces the jitter source, letting tests pin or disable the
// perturbation.
func WithJitter(jitter func() float64) ScorerOption {
	return func(s *Scorer) {
		s.jitter = jitter
	}
}

// NoJitter disables the score perturbation entirely.
func NoJitter() ScorerOption {
	return WithJitter(func() float64 { return 0 })
}

// NewScorer creates a scorer. By default each score carries a random
// perturbation in [-JitterAmplitude, +JitterAmplitude].
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		jitter: func() float64 {
			return (rand.Float64()*2 - 1) * JitterAmplitude
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score blends the rule score (0-100+, saturating at 100) with the ML
// probability. The result is always in [0, 1].
func (s *Scorer) Score(ruleFraudScore int, mlProbability float64) float64 {
	ruleProbability := math.Min(float64(ruleFraudScore)/100, 1.0)
	score := clamp(WeightML*mlProbability + WeightRule*ruleProbability)
	return clamp(score + s.jitter())
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
