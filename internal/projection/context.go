package projection

import (
	"time"

	"github.com/fortuna/pomona/internal/store"
)

// DefaultRestDays is assumed when a player has no earlier game on record
const DefaultRestDays = 3

// Context is the situational input to the contextual adjustment
type Context struct {
	GameID       int
	TeamID       int
	IsHome       bool
	RestDays     int
	Availability store.Availability
	// Defaulted is set when no game row existed for the date
	Defaulted bool
}

// Multipliers holds the contextual adjustment constants
type Multipliers struct {
	HomeBonus   float64
	RestPoor    float64
	RestAverage float64
	RestGood    float64
}

// DefaultMultipliers are the production constants
var DefaultMultipliers = Multipliers{
	HomeBonus:   0.03,
	RestPoor:    0.0,
	RestAverage: 0.02,
	RestGood:    0.05,
}

// Home returns the home-game factor
func (m Multipliers) Home(isHome bool) float64 {
	if isHome {
		return 1 + m.HomeBonus
	}
	return 1
}

// Rest returns the rest-day factor: ≤1 day poor, 2 average, ≥3 good
func (m Multipliers) Rest(days int) float64 {
	switch {
	case days <= 1:
		return 1 + m.RestPoor
	case days >= 3:
		return 1 + m.RestGood
	default:
		return 1 + m.RestAverage
	}
}

// AvailabilityFactor maps a status to its multiplier. Statuses that keep a
// player off the field zero the line; unknown statuses count as active.
func AvailabilityFactor(status store.Availability) float64 {
	switch status {
	case store.AvailabilityLimited:
		return 0.85
	case store.AvailabilityQuestionable:
		return 0.70
	case store.AvailabilityOut, store.AvailabilityInjured, store.AvailabilityInactive:
		return 0
	default:
		return 1
	}
}

// Adjust applies the home, rest and availability multipliers to v in that order
func (m Multipliers) Adjust(v float64, c Context) float64 {
	v *= m.Home(c.IsHome)
	v *= m.Rest(c.RestDays)
	v *= AvailabilityFactor(c.Availability)
	return v
}

// daysBetween counts whole calendar days from a to b
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
