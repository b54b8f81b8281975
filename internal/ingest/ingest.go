// Package ingest holds what every upstream data source shares: the error
// sentinel and the normalization of upstream status strings.
package ingest

import (
	"errors"
	"strings"

	"github.com/fortuna/pomona/internal/store"
)

// ErrDataSource wraps transport, status and circuit-breaker failures of an
// upstream sports data API
var ErrDataSource = errors.New("data source unavailable")

// MapGameStatus normalizes an upstream game status. Unknown values read as scheduled.
func MapGameStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "inprogress", "in progress", "in_progress":
		return store.GameStatusInProgress
	case "final", "f/ot", "completed", "closed":
		return store.GameStatusFinal
	case "postponed", "suspended":
		return store.GameStatusPostponed
	case "canceled", "cancelled", "forfeit":
		return store.GameStatusCancelled
	default:
		return store.GameStatusScheduled
	}
}

// MapInjuryStatus converts an upstream injury designation into an availability.
// An inactive roster flag overrides the designation.
func MapInjuryStatus(injury string, active bool) store.Availability {
	if !active {
		return store.AvailabilityInactive
	}
	switch strings.ToLower(strings.TrimSpace(injury)) {
	case "out", "injured reserve", "ir":
		return store.AvailabilityOut
	case "doubtful", "questionable":
		return store.AvailabilityQuestionable
	case "probable", "day-to-day", "limited":
		return store.AvailabilityLimited
	default:
		return store.AvailabilityActive
	}
}
