package projection

import (
	"fmt"

	"github.com/fortuna/pomona/internal/store"
)

// MethodWeightedContextual tags projections produced by this engine
const MethodWeightedContextual = "weighted_avg_contextual"

// Profile describes how one league is projected
type Profile struct {
	Sport store.Sport
	// Lookback is the number of completed games fed to the engine
	Lookback int
	// Weights are applied most-recent-first and sum to 1
	Weights []float64
	Stats   []store.Stat
	// Decimals is the rounding precision of adjusted values
	Decimals int
}

var profiles = map[store.Sport]Profile{
	store.SportNBA: {
		Sport:    store.SportNBA,
		Lookback: 5,
		Weights:  []float64{0.40, 0.30, 0.20, 0.07, 0.03},
		Stats:    []store.Stat{store.StatPoints, store.StatRebounds, store.StatAssists},
		Decimals: 1,
	},
	store.SportNFL: {
		Sport:    store.SportNFL,
		Lookback: 3,
		Weights:  []float64{0.50, 0.30, 0.20},
		Stats:    []store.Stat{store.StatPassingYards, store.StatRushingYards, store.StatReceivingYards},
		Decimals: 0,
	},
}

// ProfileFor returns the league profile
func ProfileFor(sport store.Sport) (Profile, error) {
	p, ok := profiles[sport]
	if !ok {
		return Profile{}, fmt.Errorf("sport %q: %w", sport, ErrUnknownSport)
	}
	return p, nil
}

// PrimaryStat picks the stat that drives confidence and trend. Basketball
// uses points; football uses the yardage stat with the largest total,
// ties resolved in profile order.
func (p Profile) PrimaryStat(samples []store.StatSample) store.Stat {
	if p.Sport == store.SportNBA {
		return store.StatPoints
	}

	best := p.Stats[0]
	bestTotal := -1.0
	for _, stat := range p.Stats {
		total := 0.0
		for _, s := range samples {
			total += s.Value(stat)
		}
		if total > bestTotal {
			best, bestTotal = stat, total
		}
	}
	return best
}
