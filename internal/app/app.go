// Package app wires configuration into the running components shared by the
// service and the one-shot CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/config"
	"github.com/fortuna/pomona/internal/ingest/sportsdata"
	"github.com/fortuna/pomona/internal/insights"
	"github.com/fortuna/pomona/internal/metrics"
	"github.com/fortuna/pomona/internal/projection"
	"github.com/fortuna/pomona/internal/publisher"
	"github.com/fortuna/pomona/internal/scheduler"
	"github.com/fortuna/pomona/internal/service"
	"github.com/fortuna/pomona/internal/store"
	"github.com/fortuna/pomona/internal/store/memstore"
	"github.com/fortuna/pomona/internal/store/repository"
)

const (
	redisMaxRetries = 30
	redisRetryDelay = 2 * time.Second
)

// StatStore is everything the components need from the durable store
type StatStore interface {
	scheduler.Store
	projection.HistorySource
	sportsdata.Store
	service.ProjectionStore
	service.RefreshLogStore
	service.Pinger
}

// App holds the wired components
type App struct {
	Config       *config.Config
	Location     *time.Location
	Metrics      *metrics.Recorder
	Store        StatStore
	Cache        cache.Cache
	Orchestrator *scheduler.Orchestrator
	// Refresher is nil when no sports data API key is configured
	Refresher *sportsdata.Refresher

	closers []func() error
	log     logrus.FieldLogger
}

// Build connects the store and cache and wires the refresh pipeline
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		Metrics:  metrics.NewRecorder(),
		log:      log,
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var events scheduler.EventPublisher
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, using in-process cache and no event streams")
		a.Cache = cache.NewMemoryCache(nil)
	} else {
		rc, err := connectRedis(ctx, cfg.RedisURL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		a.Cache = rc
		events = publisher.NewRedisStreamPublisher(rc.Client())
		log.Info("✓ Connected to Redis")
	}

	schedCfg, err := orchestratorConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine := projection.NewEngine(a.Store, log)
	pub := insights.NewPublisher(a.Cache, a.Metrics, log)

	opts := []scheduler.Option{
		scheduler.WithMetrics(a.Metrics),
		scheduler.WithLocation(loc),
	}
	if events != nil {
		opts = append(opts, scheduler.WithEvents(events))
	}
	if cfg.SportsData.APIKey != "" {
		client := sportsdata.NewClient(cfg.SportsData, a.Metrics, log)
		a.Refresher = sportsdata.NewRefresher(client, a.Store, log,
			sportsdata.WithLocation(loc),
			sportsdata.WithLookbackDays(cfg.SportsData.StatsLookbackDays),
		)
		opts = append(opts, scheduler.WithRefresher(a.Refresher))
	} else {
		log.Warn("SPORTS_API_KEY not set, jobs will only recompute projections from stored data")
	}

	a.Orchestrator = scheduler.NewOrchestrator(a.Store, engine, pub, schedCfg, log, opts...)
	return a, nil
}

// Services builds the read-side services over the wired components
func (a *App) Services() (*service.InsightService, *service.ProjectionService, *service.RefreshService, *service.HealthService) {
	return service.NewInsightService(a.Cache, a.Store, a.Location, a.log),
		service.NewProjectionService(a.Cache, a.Store, a.log),
		service.NewRefreshService(a.Orchestrator, a.Store, a.log),
		service.NewHealthService(a.Store, service.PingFunc(a.Cache.HealthCheck))
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("closing resource")
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.StoreDriver == config.StoreDriverMemory {
		a.log.Warn("using in-memory store, data will not survive a restart")
		a.Store = memstore.New()
		return nil
	}

	db, err := store.NewDatabase(a.Config.DatabaseURL, a.log)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.log.Info("✓ Connected to database")

	if a.Config.RunMigrations {
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		a.log.Info("✓ Database migrations applied")
	}

	a.Store = repository.NewStatStore(db)
	return nil
}

// connectRedis retries until Redis answers or ctx ends
func connectRedis(ctx context.Context, url string, log logrus.FieldLogger) (*cache.RedisCache, error) {
	var lastErr error
	for i := 0; i < redisMaxRetries; i++ {
		rc, err := cache.NewRedisCache(url)
		if err == nil {
			return rc, nil
		}
		lastErr = err

		log.WithError(err).WithFields(logrus.Fields{
			"attempt":     i + 1,
			"max_retries": redisMaxRetries,
		}).Warn("Redis connection failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisRetryDelay):
		}
	}
	return nil, fmt.Errorf("connecting to redis after %d attempts: %w", redisMaxRetries, lastErr)
}

func orchestratorConfig(cfg *config.Config) (scheduler.Config, error) {
	out := scheduler.DefaultConfig()
	out.Leagues = out.Leagues[:0]
	for _, name := range cfg.Scheduler.Leagues {
		sport, ok := store.ParseSport(name)
		if !ok {
			return out, fmt.Errorf("unsupported league %q in SCHEDULER_LEAGUES", name)
		}
		out.Leagues = append(out.Leagues, sport)
	}
	out.BatchSize = cfg.Scheduler.BatchSize
	out.TopN = cfg.Scheduler.TopN
	out.DisableCatchUp = !cfg.Scheduler.CatchUp
	out.LogRetention = cfg.Scheduler.LogRetention
	out.ProjectionRetention = cfg.Scheduler.ProjectionRetention
	out.StatsRetention = cfg.Scheduler.StatsRetention
	return out, nil
}
