package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/insights"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/store"
)

// ProjectionList is a page of projections plus where it was read from
type ProjectionList struct {
	Date        string              `json:"date"`
	Sport       store.Sport         `json:"sport,omitempty"`
	Projections []*store.Projection `json:"projections"`
	Count       int                 `json:"count"`
	Source      string              `json:"source"`
}

// ProjectionService handles projection reads
type ProjectionService struct {
	cache cache.Cache
	store ProjectionStore
	log   logrus.FieldLogger
}

// NewProjectionService creates a new projection service
func NewProjectionService(c cache.Cache, st ProjectionStore, log logrus.FieldLogger) *ProjectionService {
	return &ProjectionService{
		cache: c,
		store: st,
		log:   logging.Component(log, "projection_service"),
	}
}

// ForDate lists projections on date ranked by fruit score. A single league
// is served from the cached list when present; limit 0 means all.
func (s *ProjectionService) ForDate(ctx context.Context, sport store.Sport, date time.Time, limit int) (*ProjectionList, error) {
	key := cache.DateKey(date)
	list := &ProjectionList{Date: key, Sport: sport}

	if sport != "" {
		cached, err := insights.LoadProjections(ctx, s.cache, sport, key)
		switch {
		case err == nil:
			list.Projections = rank(cached)
			list.Source = SourceCache
		case !insights.IsMiss(err):
			s.log.WithError(err).WithField("sport", sport).Warn("cache read failed, reading store")
		}
	}

	if list.Source == "" {
		projections, err := s.store.ProjectionsForDate(ctx, sport, date, 0)
		if err != nil {
			return nil, fmt.Errorf("loading projections for %s: %w", key, err)
		}
		list.Projections = projections
		list.Source = SourceStore
	}

	if limit > 0 && len(list.Projections) > limit {
		list.Projections = list.Projections[:limit]
	}
	if list.Projections == nil {
		list.Projections = []*store.Projection{}
	}
	list.Count = len(list.Projections)
	return list, nil
}

// ForPlayer returns one player's projection on date; store.ErrNotFound when none exists
func (s *ProjectionService) ForPlayer(ctx context.Context, playerID int, date time.Time) (*store.Projection, error) {
	p, err := s.store.PlayerProjection(ctx, playerID, date)
	if err != nil {
		return nil, fmt.Errorf("loading projection for player %d: %w", playerID, err)
	}
	return p, nil
}

// rank orders projections by fruit score, highest first, keeping input order on ties
func rank(projections []*store.Projection) []*store.Projection {
	sort.SliceStable(projections, func(i, j int) bool {
		return projections[i].FruitScore > projections[j].FruitScore
	})
	return projections
}
