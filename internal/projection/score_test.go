package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fortuna/pomona/internal/store"
)

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  store.Confidence
	}{
		{95, store.ConfidenceHigh},
		{80, store.ConfidenceHigh},
		{79, store.ConfidenceMedium},
		{70, store.ConfidenceMedium},
		{69, store.ConfidenceLow},
		{45, store.ConfidenceLow},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, Tier(tt.score), "score %d", tt.score)
	}
}

func TestFruitScore(t *testing.T) {
	tests := []struct {
		name      string
		history   []float64
		lookback  int
		projected float64
		want      int
	}{
		{name: "consistent history clamps high", history: []float64{20, 20, 20, 20, 20}, lookback: 5, projected: 20, want: MaxFruitScore},
		{name: "volatile and unrealistic clamps low", history: []float64{0, 0, 0, 0, 100}, lookback: 5, projected: 100, want: MinFruitScore},
		{name: "zero mean keeps base fifty", history: []float64{0, 0, 0}, lookback: 5, projected: 0, want: 56},
		{name: "partial window scales bonus", history: []float64{10, 10}, lookback: 5, projected: 10, want: 95},
		{name: "reasonableness penalty", history: []float64{30, 28, 25, 22, 20}, lookback: 5, projected: 28.7, want: 92},
		{name: "zero projection skips penalty", history: []float64{30, 28, 25, 22, 20}, lookback: 5, projected: 0, want: 95},
		{name: "spread lowers base", history: []float64{10, 30}, lookback: 3, projected: 20, want: 57},
		{name: "empty history", history: nil, lookback: 5, projected: 10, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FruitScore(tt.history, tt.lookback, tt.projected)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		want    store.Trend
	}{
		{name: "exactly plus ten is stable", history: []float64{11, 11, 11, 10, 10}, want: store.Trend{Direction: store.TrendStable, MomentumScore: 10}},
		{name: "exactly minus ten is stable", history: []float64{9, 9, 9, 10, 10}, want: store.Trend{Direction: store.TrendStable, MomentumScore: -10}},
		{name: "improving", history: []float64{12, 12, 12, 10, 10}, want: store.Trend{Direction: store.TrendImproving, MomentumScore: 20}},
		{name: "declining", history: []float64{8, 8, 8, 10, 10}, want: store.Trend{Direction: store.TrendDeclining, MomentumScore: -20}},
		{name: "momentum clamps", history: []float64{50, 50, 50, 10, 10}, want: store.Trend{Direction: store.TrendImproving, MomentumScore: 100}},
		{name: "no older window", history: []float64{30, 10, 20}, want: store.Trend{Direction: store.TrendStable}},
		{name: "older mean zero", history: []float64{30, 10, 20, 0, 0}, want: store.Trend{Direction: store.TrendStable}},
		{name: "single older game", history: []float64{20, 20, 20, 10}, want: store.Trend{Direction: store.TrendImproving, MomentumScore: 100}},
		{name: "single sample", history: []float64{30}, want: store.Trend{Direction: store.TrendStable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrendOf(tt.history))
		})
	}
}

func TestMultipliers(t *testing.T) {
	m := DefaultMultipliers

	assert.InDelta(t, 1.03, m.Home(true), 1e-12)
	assert.Equal(t, 1.0, m.Home(false))

	assert.Equal(t, 1.0, m.Rest(0))
	assert.Equal(t, 1.0, m.Rest(1))
	assert.InDelta(t, 1.02, m.Rest(2), 1e-12)
	assert.InDelta(t, 1.05, m.Rest(3), 1e-12)
	assert.InDelta(t, 1.05, m.Rest(10), 1e-12)

	assert.Equal(t, 1.0, AvailabilityFactor(store.AvailabilityActive))
	assert.Equal(t, 0.85, AvailabilityFactor(store.AvailabilityLimited))
	assert.Equal(t, 0.70, AvailabilityFactor(store.AvailabilityQuestionable))
	assert.Equal(t, 0.0, AvailabilityFactor(store.AvailabilityOut))
	assert.Equal(t, 1.0, AvailabilityFactor(store.Availability("probable")))
}
