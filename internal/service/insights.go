package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/insights"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/store"
)

// Sources of a read
const (
	SourceCache = "cache"
	SourceStore = "store"
)

// ProjectionStore is the read side of the stat store the services use
type ProjectionStore interface {
	ProjectionsForDate(ctx context.Context, sport store.Sport, date time.Time, limit int) ([]*store.Projection, error)
	PlayerProjection(ctx context.Context, playerID int, date time.Time) (*store.Projection, error)
}

// InsightResult is a bundle plus where it was read from
type InsightResult struct {
	*store.InsightBundle
	Source string `json:"source"`
}

// InsightService serves daily insight bundles from the cache, rebuilding
// them from stored projections when the cache has nothing
type InsightService struct {
	cache cache.Cache
	store ProjectionStore
	loc   *time.Location
	topN  int
	now   func() time.Time
	log   logrus.FieldLogger
}

// NewInsightService creates a new insight service
func NewInsightService(c cache.Cache, st ProjectionStore, loc *time.Location, log logrus.FieldLogger) *InsightService {
	if loc == nil {
		loc = time.UTC
	}
	return &InsightService{
		cache: c,
		store: st,
		loc:   loc,
		topN:  insights.DefaultTopN,
		now:   time.Now,
		log:   logging.Component(log, "insight_service"),
	}
}

// Today returns the current date in the home zone
func (s *InsightService) Today() time.Time {
	return store.DateOnly(s.now().In(s.loc))
}

// Daily returns the bundle for date, optionally scoped to one league
func (s *InsightService) Daily(ctx context.Context, date time.Time, sport store.Sport) (*InsightResult, error) {
	key := cache.DateKey(date)

	bundle, err := insights.Load(ctx, s.cache, key, sport)
	if err == nil {
		return &InsightResult{InsightBundle: bundle, Source: SourceCache}, nil
	}
	if !insights.IsMiss(err) {
		s.log.WithError(err).WithField("date", key).Warn("cache read failed, rebuilding from store")
	}

	projections, err := s.store.ProjectionsForDate(ctx, sport, date, 0)
	if err != nil {
		return nil, fmt.Errorf("loading projections for %s: %w", key, err)
	}

	now := s.now()
	bundle = insights.Build(projections, insights.BuildOptions{
		TopN:     s.topN,
		Date:     date,
		Sport:    sport,
		Now:      now,
		Location: s.loc,
	})
	// keep the requested calendar date regardless of its zone
	bundle.Date = key
	return &InsightResult{InsightBundle: bundle, Source: SourceStore}, nil
}
