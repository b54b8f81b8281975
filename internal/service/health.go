package service

import (
	"context"
	"sync"
	"time"
)

// Pinger is a dependency with a liveness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is the result of checking every dependency
type HealthReport struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
	Time    time.Time         `json:"time"`
}

// HealthService checks the store and cache. A failing store makes the
// service unhealthy; a failing cache only degrades it.
type HealthService struct {
	store   Pinger
	cache   Pinger
	timeout time.Duration
}

// NewHealthService creates a new health service
func NewHealthService(store, cache Pinger) *HealthService {
	return &HealthService{store: store, cache: cache, timeout: 3 * time.Second}
}

// Check pings the dependencies concurrently
func (s *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var storeErr, cacheErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		storeErr = s.store.Ping(ctx)
	}()
	go func() {
		defer wg.Done()
		cacheErr = s.cache.Ping(ctx)
	}()
	wg.Wait()

	report := HealthReport{
		Status:  StatusHealthy,
		Service: "pomona",
		Checks:  map[string]string{"database": "ok", "cache": "ok"},
		Time:    time.Now().UTC(),
	}
	if cacheErr != nil {
		report.Checks["cache"] = cacheErr.Error()
		report.Status = StatusDegraded
	}
	if storeErr != nil {
		report.Checks["database"] = storeErr.Error()
		report.Status = StatusUnhealthy
	}
	return report
}
