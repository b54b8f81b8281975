package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/metrics"
	"github.com/fortuna/pomona/internal/store"
)

// Cache lifetimes
const (
	FinalTTL       = 2 * time.Hour
	InterimTTL     = time.Hour
	ProjectionsTTL = time.Hour
)

// TTLFor picks the bundle lifetime
func TTLFor(final bool) time.Duration {
	if final {
		return FinalTTL
	}
	return InterimTTL
}

// Publisher writes bundles and projection lists to the cache. Write
// failures are logged and counted, never returned.
type Publisher struct {
	cache   cache.Cache
	metrics *metrics.Recorder
	log     logrus.FieldLogger
}

// NewPublisher constructs a Publisher
func NewPublisher(c cache.Cache, rec *metrics.Recorder, log logrus.FieldLogger) *Publisher {
	return &Publisher{
		cache:   c,
		metrics: rec,
		log:     logging.Component(log, "insights"),
	}
}

// Publish stores bundle under its date key with ttl and reports whether the write landed
func (p *Publisher) Publish(ctx context.Context, bundle *store.InsightBundle, ttl time.Duration) (string, bool) {
	key := cache.InsightsKey(bundle.Date, string(bundle.Sport))
	ok := p.set(ctx, "insights", key, bundle, ttl)
	if ok {
		p.log.WithFields(logrus.Fields{
			"key":      key,
			"ttl":      ttl.String(),
			"top":      len(bundle.TopFruit),
			"is_final": bundle.IsFinal,
		}).Info("published daily insights")
	}
	return key, ok
}

// PublishProjections caches one league's projection list for a date
func (p *Publisher) PublishProjections(ctx context.Context, sport store.Sport, date string, projections []*store.Projection) bool {
	key := cache.ProjectionsKey(string(sport), date)
	if projections == nil {
		projections = []*store.Projection{}
	}
	return p.set(ctx, "projections", key, projections, ProjectionsTTL)
}

func (p *Publisher) set(ctx context.Context, kind, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		p.metrics.CacheFailed(kind)
		p.log.WithError(err).WithField("key", key).Error("encoding cache payload")
		return false
	}

	if err := p.cache.Set(ctx, key, data, ttl); err != nil {
		p.metrics.CacheFailed(kind)
		p.log.WithError(err).WithField("key", key).Warn("cache write failed")
		return false
	}
	return true
}

// Load reads a cached bundle; ErrMiss when absent
func Load(ctx context.Context, c cache.Cache, date string, sport store.Sport) (*store.InsightBundle, error) {
	raw, err := c.Get(ctx, cache.InsightsKey(date, string(sport)))
	if err != nil {
		return nil, err
	}

	var bundle store.InsightBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return nil, fmt.Errorf("decoding cached insights: %w", err)
	}
	return &bundle, nil
}

// LoadProjections reads a cached projection list; ErrMiss when absent
func LoadProjections(ctx context.Context, c cache.Cache, sport store.Sport, date string) ([]*store.Projection, error) {
	raw, err := c.Get(ctx, cache.ProjectionsKey(string(sport), date))
	if err != nil {
		return nil, err
	}

	var projections []*store.Projection
	if err := json.Unmarshal([]byte(raw), &projections); err != nil {
		return nil, fmt.Errorf("decoding cached projections: %w", err)
	}
	return projections, nil
}

// IsMiss reports whether err means the key was absent
func IsMiss(err error) bool {
	return errors.Is(err, cache.ErrMiss)
}
