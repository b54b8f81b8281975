package projection

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/fortuna/pomona/internal/store"
)

// Fruit score bounds
const (
	MinFruitScore = 45
	MaxFruitScore = 95

	highTier   = 80
	mediumTier = 70

	trendThreshold = 10.0
)

// FruitScore rates confidence from the unadjusted primary-stat history and
// the adjusted projected value of that stat.
func FruitScore(history []float64, lookback int, projected float64) int {
	if len(history) == 0 {
		return 50
	}

	mean, std := stat.PopMeanStdDev(history, nil)

	score := 50.0
	if mean > 0 {
		score = math.Max(50, 100-std/mean*100)
	}

	if lookback > 0 {
		score += 10 * math.Min(1, float64(len(history))/float64(lookback))
	}

	if projected > 0 && mean > 0 {
		score -= math.Abs(projected-mean) / mean * 20
	}

	return clamp(int(math.Round(score)), MinFruitScore, MaxFruitScore)
}

// Tier maps a fruit score to its confidence level
func Tier(score int) store.Confidence {
	switch {
	case score >= highTier:
		return store.ConfidenceHigh
	case score >= mediumTier:
		return store.ConfidenceMedium
	default:
		return store.ConfidenceLow
	}
}

// TrendOf compares the mean of the three most recent values with the two before
func TrendOf(history []float64) store.Trend {
	if len(history) < 2 {
		return store.Trend{Direction: store.TrendStable}
	}

	recent := history[:min(3, len(history))]
	var older []float64
	if len(history) > 3 {
		older = history[3:min(5, len(history))]
	}

	recentAvg := stat.Mean(recent, nil)
	olderAvg := recentAvg
	if len(older) > 0 {
		olderAvg = stat.Mean(older, nil)
	}

	change := 0.0
	if olderAvg > 0 {
		change = (recentAvg - olderAvg) * 100 / olderAvg
	}

	direction := store.TrendStable
	switch {
	case change > trendThreshold:
		direction = store.TrendImproving
	case change < -trendThreshold:
		direction = store.TrendDeclining
	}

	return store.Trend{
		Direction:     direction,
		MomentumScore: int(math.Round(math.Max(-100, math.Min(100, change)))),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
