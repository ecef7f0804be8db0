package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreWeighting(t *testing.T) {
	s := NewScorer(NoJitter())

	tests := []struct {
		name      string
		ruleScore int
		mlProb    float64
		want      float64
	}{
		{"both maxed", 100, 1.0, 1.0},
		{"both zero", 0, 0, 0},
		{"balanced midpoint", 50, 0.5, 0.5},
		{"ml only", 0, 1.0, 0.7},
		{"rule only", 100, 0, 0.3},
		{"rule saturates at 100", 250, 0, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Score(tt.ruleScore, tt.mlProb), 1e-9)
		})
	}
}

func TestScoreJitterClamped(t *testing.T) {
	up := NewScorer(WithJitter(func() float64 { return JitterAmplitude }))
	down := NewScorer(WithJitter(func() float64 { return -JitterAmplitude }))

	// Jitter is applied post-clamp and the result re-clamped.
	assert.Equal(t, 1.0, up.Score(100, 1.0))
	assert.Equal(t, 0.0, down.Score(0, 0))

	assert.InDelta(t, 0.51, up.Score(50, 0.5), 1e-9)
	assert.InDelta(t, 0.49, down.Score(50, 0.5), 1e-9)
}

func TestScoreDefaultJitterBounded(t *testing.T) {
	s := NewScorer()

	for i := 0; i < 1000; i++ {
		got := s.Score(50, 0.5)
		assert.GreaterOrEqual(t, got, 0.5-JitterAmplitude)
		assert.LessOrEqual(t, got, 0.5+JitterAmplitude)
	}
}
