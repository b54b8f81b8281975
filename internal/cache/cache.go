package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCache wraps any failure talking to the cache backend
	ErrCache = errors.New("cache unavailable")
	// ErrMiss is returned by Get when the key is absent or expired
	ErrMiss = errors.New("cache miss")
)

// Cache is a key-value store with per-key expiry
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	HealthCheck(ctx context.Context) error
}

const dateLayout = "2006-01-02"

// DateKey formats the calendar date of t as used in keys
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// InsightsKey is the key of the insight bundle for a date, optionally scoped to a league
func InsightsKey(date, sport string) string {
	if sport == "" {
		return fmt.Sprintf("daily_insights:%s", date)
	}
	return fmt.Sprintf("daily_insights:%s:%s", sport, date)
}

// ProjectionsKey is the key of one league's projection list for a date
func ProjectionsKey(sport, date string) string {
	return fmt.Sprintf("projections:%s:%s", sport, date)
}
