package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/store"
)

var (
	// ErrInsufficientHistory means the player has no completed games to project from
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrUnknownSport means no profile exists for the league
	ErrUnknownSport = errors.New("unknown sport")
)

// HistorySource is the read-only view of the stat store the engine needs
type HistorySource interface {
	RecentSamples(ctx context.Context, playerID int, sport store.Sport, before time.Time, k int) ([]store.StatSample, error)
	LastGameDateBefore(ctx context.Context, playerID int, date time.Time) (time.Time, bool, error)
	GameContext(ctx context.Context, playerID int, date time.Time) (*store.GameContext, error)
}

// Engine computes projections. It holds no mutable state.
type Engine struct {
	source      HistorySource
	multipliers Multipliers
	now         func() time.Time
	log         logrus.FieldLogger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the timestamp source for LastUpdated
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMultipliers overrides the contextual constants
func WithMultipliers(m Multipliers) Option {
	return func(e *Engine) { e.multipliers = m }
}

// NewEngine constructs an Engine reading from source
func NewEngine(source HistorySource, log logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		source:      source,
		multipliers: DefaultMultipliers,
		now:         time.Now,
		log:         logging.Component(log, "projection"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Project computes the projection for one player on targetDate
func (e *Engine) Project(ctx context.Context, playerID int, targetDate time.Time, sport store.Sport) (*store.Projection, error) {
	profile, err := ProfileFor(sport)
	if err != nil {
		return nil, err
	}

	samples, err := e.source.RecentSamples(ctx, playerID, sport, targetDate, profile.Lookback)
	if err != nil {
		return nil, fmt.Errorf("loading history for player %d: %w", playerID, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("player %d: %w", playerID, ErrInsufficientHistory)
	}
	if len(samples) > profile.Lookback {
		samples = samples[:profile.Lookback]
	}

	pctx, err := e.ResolveContext(ctx, playerID, targetDate)
	if err != nil {
		return nil, err
	}

	base := BaseProjection(samples, profile)
	adjusted := make(map[store.Stat]float64, len(base))
	for stat, v := range base {
		adjusted[stat] = roundTo(e.multipliers.Adjust(v, pctx), profile.Decimals)
	}

	primary := profile.PrimaryStat(samples)
	history := make([]float64, len(samples))
	for i, s := range samples {
		history[i] = s.Value(primary)
	}

	score := FruitScore(history, profile.Lookback, adjusted[primary])

	e.log.WithFields(logrus.Fields{
		"player_id":   playerID,
		"sport":       sport,
		"samples":     len(samples),
		"fruit_score": score,
		"defaulted":   pctx.Defaulted,
	}).Debug("projection computed")

	return &store.Projection{
		PlayerID:       playerID,
		GameID:         pctx.GameID,
		Sport:          sport,
		ProjectionDate: store.DateOnly(targetDate),
		Stats:          adjusted,
		BaseStats:      base,
		FruitScore:     score,
		Confidence:     Tier(score),
		Trend:          TrendOf(history),
		Method:         MethodWeightedContextual,
		LastUpdated:    e.now(),
	}, nil
}

// ResolveContext builds the situational context for a player on date. A
// missing game row yields an away, active, well-rested default.
func (e *Engine) ResolveContext(ctx context.Context, playerID int, date time.Time) (Context, error) {
	pctx := Context{
		RestDays:     DefaultRestDays,
		Availability: store.AvailabilityActive,
	}

	gc, err := e.source.GameContext(ctx, playerID, date)
	switch {
	case errors.Is(err, store.ErrContextNotFound):
		pctx.Defaulted = true
	case err != nil:
		return Context{}, fmt.Errorf("resolving context for player %d: %w", playerID, err)
	default:
		pctx.GameID = gc.GameID
		pctx.TeamID = gc.TeamID
		pctx.IsHome = gc.IsHome
		if gc.Availability != "" {
			pctx.Availability = gc.Availability
		}
	}

	last, ok, err := e.source.LastGameDateBefore(ctx, playerID, date)
	if err != nil {
		return Context{}, fmt.Errorf("resolving rest days for player %d: %w", playerID, err)
	}
	if ok {
		pctx.RestDays = daysBetween(last, date)
	}

	return pctx, nil
}

// BaseProjection is the weighted sum of each stat over samples (most recent
// first) with the first len(samples) weights. Weights are not renormalized.
func BaseProjection(samples []store.StatSample, profile Profile) map[store.Stat]float64 {
	n := min(len(samples), len(profile.Weights))
	weights := profile.Weights[:n]

	base := make(map[store.Stat]float64, len(profile.Stats))
	values := make([]float64, n)
	for _, stat := range profile.Stats {
		for i := 0; i < n; i++ {
			values[i] = samples[i].Value(stat)
		}
		base[stat] = floats.Dot(values, weights)
	}
	return base
}
