package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/insights"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/metrics"
	"github.com/fortuna/pomona/internal/projection"
	"github.com/fortuna/pomona/internal/publisher"
	"github.com/fortuna/pomona/internal/store"
)

// Store is the slice of the stat store the orchestrator drives
type Store interface {
	ActivePlayers(ctx context.Context, sport store.Sport, date time.Time) ([]store.ActivePlayer, error)
	SaveProjections(ctx context.Context, projections []*store.Projection) error
	StartRefreshLog(ctx context.Context, entry *store.RefreshLog) error
	CompleteRefreshLog(ctx context.Context, id int64, result store.RefreshResult) error
	DeleteRefreshLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteProjectionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Projector computes one player's projection
type Projector interface {
	Project(ctx context.Context, playerID int, targetDate time.Time, sport store.Sport) (*store.Projection, error)
}

// Refresher pulls upstream data into the stat store. Each method returns the
// number of records written.
type Refresher interface {
	RefreshAll(ctx context.Context, sport store.Sport) (int, error)
	RefreshAvailability(ctx context.Context, sport store.Sport) (int, error)
	RefreshLineups(ctx context.Context, sport store.Sport) (int, error)
}

// EventPublisher announces finished runs and new insight bundles
type EventPublisher interface {
	PublishRefresh(ctx context.Context, event publisher.RefreshEvent) error
	PublishInsights(ctx context.Context, event publisher.InsightsEvent) error
}

// Config holds orchestrator configuration
type Config struct {
	Leagues             []store.Sport
	BatchSize           int
	TopN                int
	LogRetention        time.Duration
	ProjectionRetention time.Duration
	StatsRetention      time.Duration
	Triggers            []Trigger
	// DisableCatchUp skips the missed-slot job Start would otherwise run
	DisableCatchUp bool
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Leagues:             []store.Sport{store.SportNBA, store.SportNFL},
		BatchSize:           50,
		TopN:                insights.DefaultTopN,
		LogRetention:        30 * 24 * time.Hour,
		ProjectionRetention: 14 * 24 * time.Hour,
		StatsRetention:      30 * 24 * time.Hour,
		Triggers:            DefaultTriggers(),
	}
}

// Orchestrator runs refresh jobs on a schedule or on demand
type Orchestrator struct {
	store     Store
	projector Projector
	refresher Refresher
	insights  *insights.Publisher
	events    EventPublisher
	metrics   *metrics.Recorder
	config    Config
	loc       *time.Location
	now       func() time.Time
	log       logrus.FieldLogger

	active atomic.Int32

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[cron.EntryID]Trigger
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRefresher sets the upstream refresher. Without one, jobs only recompute
// projections from what the store already holds.
func WithRefresher(r Refresher) Option {
	return func(o *Orchestrator) { o.refresher = r }
}

// WithEvents sets the stream publisher for run and insight events
func WithEvents(p EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLocation sets the home time zone
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) { o.loc = loc }
}

// NewOrchestrator creates a new refresh orchestrator
func NewOrchestrator(st Store, projector Projector, pub *insights.Publisher, cfg Config, log logrus.FieldLogger, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if len(cfg.Leagues) == 0 {
		cfg.Leagues = def.Leagues
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = def.LogRetention
	}
	if cfg.ProjectionRetention <= 0 {
		cfg.ProjectionRetention = def.ProjectionRetention
	}
	if cfg.StatsRetention <= 0 {
		cfg.StatsRetention = def.StatsRetention
	}
	if cfg.Triggers == nil {
		cfg.Triggers = def.Triggers
	}

	o := &Orchestrator{
		store:     st,
		projector: projector,
		insights:  pub,
		config:    cfg,
		loc:       time.UTC,
		now:       time.Now,
		log:       logging.Component(log, "scheduler"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunJob executes one job synchronously. Only full_refresh returns step
// errors; the other jobs log them and return nil.
func (o *Orchestrator) RunJob(ctx context.Context, kind JobKind) error {
	switch kind {
	case JobFullRefresh, JobMiddayUpdate, JobPregameUpdate, JobWeeklyCleanup:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, kind)
	}

	o.active.Add(1)
	defer o.active.Add(-1)

	started := o.now()
	entry := &store.RefreshLog{
		RunID:     uuid.NewString(),
		JobKind:   string(kind),
		Status:    store.RefreshRunning,
		StartedAt: started,
	}
	log := o.log.WithFields(logrus.Fields{"job": kind, "run_id": entry.RunID})
	log.Info("job started")

	var (
		records int
		err     error
	)
	if startErr := o.store.StartRefreshLog(ctx, entry); startErr != nil {
		err = fmt.Errorf("starting refresh log: %w", startErr)
	} else {
		records, err = o.execute(ctx, kind, entry.RunID, log)
	}

	o.finish(ctx, kind, entry, records, err, log)

	if err != nil {
		if kind.failFast() {
			return fmt.Errorf("%s: %w", kind, err)
		}
		log.WithError(err).Error("job failed")
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, kind JobKind, runID string, log logrus.FieldLogger) (int, error) {
	switch kind {
	case JobFullRefresh:
		return o.refreshAndProject(ctx, runID, false, log, func(r Refresher) func(context.Context, store.Sport) (int, error) {
			return r.RefreshAll
		})
	case JobMiddayUpdate:
		return o.refreshAndProject(ctx, runID, false, log, func(r Refresher) func(context.Context, store.Sport) (int, error) {
			return r.RefreshAvailability
		})
	case JobPregameUpdate:
		return o.refreshAndProject(ctx, runID, true, log, func(r Refresher) func(context.Context, store.Sport) (int, error) {
			return r.RefreshLineups
		})
	default:
		return o.cleanup(ctx, log)
	}
}

// finish completes the refresh log once, records metrics and emits the run event
func (o *Orchestrator) finish(ctx context.Context, kind JobKind, entry *store.RefreshLog, records int, runErr error, log logrus.FieldLogger) {
	completed := o.now()
	result := store.RefreshResult{
		Status:           store.RefreshSuccess,
		RecordsProcessed: records,
		Err:              runErr,
		CompletedAt:      completed,
		Duration:         completed.Sub(entry.StartedAt),
	}
	if runErr != nil {
		result.Status = store.RefreshError
	}

	if entry.ID != 0 {
		if err := o.store.CompleteRefreshLog(ctx, entry.ID, result); err != nil {
			log.WithError(err).Error("completing refresh log")
		}
	}
	o.metrics.ObserveJob(string(kind), string(result.Status), result.Duration)

	log.WithFields(logrus.Fields{
		"status":   result.Status,
		"records":  records,
		"duration": result.Duration.Round(time.Millisecond),
	}).Info("job finished")

	if o.events == nil {
		return
	}
	event := publisher.RefreshEvent{
		RunID:            entry.RunID,
		Job:              string(kind),
		Status:           string(result.Status),
		RecordsProcessed: records,
		StartedAt:        entry.StartedAt,
		CompletedAt:      completed,
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	if err := o.events.PublishRefresh(ctx, event); err != nil {
		log.WithError(err).Warn("publishing refresh event")
	}
}

// refreshAndProject runs the per-league refresh step, recomputes projections
// for every league and publishes insights. The first error aborts the run.
func (o *Orchestrator) refreshAndProject(
	ctx context.Context,
	runID string,
	final bool,
	log logrus.FieldLogger,
	step func(Refresher) func(context.Context, store.Sport) (int, error),
) (int, error) {
	if o.refresher != nil {
		refresh := step(o.refresher)
		for _, sport := range o.config.Leagues {
			n, err := refresh(ctx, sport)
			if err != nil {
				return 0, fmt.Errorf("refreshing %s: %w", sport, err)
			}
			log.WithFields(logrus.Fields{"sport": sport, "records": n}).Info("league refreshed")
		}
	} else {
		log.Debug("no refresher configured, projecting from stored data")
	}

	now := o.now().In(o.loc)
	date := store.DateOnly(now)

	var all []*store.Projection
	byLeague := make(map[store.Sport][]*store.Projection, len(o.config.Leagues))
	for _, sport := range o.config.Leagues {
		projections, err := o.projectLeague(ctx, sport, date, log)
		if err != nil {
			return 0, err
		}
		byLeague[sport] = projections
		all = append(all, projections...)
	}

	o.publishInsights(ctx, runID, all, byLeague, now, final, log)
	return len(all), nil
}

// projectLeague projects every active player with a game on date, persists the
// results in one transaction and caches the league list.
func (o *Orchestrator) projectLeague(ctx context.Context, sport store.Sport, date time.Time, log logrus.FieldLogger) ([]*store.Projection, error) {
	players, err := o.store.ActivePlayers(ctx, sport, date)
	if err != nil {
		return nil, fmt.Errorf("loading active %s players: %w", sport, err)
	}

	results := make([]*store.Projection, 0, len(players))
	for start := 0; start < len(players); start += o.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+o.config.BatchSize, len(players))
		results = append(results, o.projectBatch(ctx, sport, date, players[start:end], log)...)
		o.metrics.BatchProcessed(string(sport))
	}

	if err := o.store.SaveProjections(ctx, results); err != nil {
		return nil, fmt.Errorf("saving %s projections: %w", sport, err)
	}
	o.metrics.AddProjections(string(sport), len(results))

	log.WithFields(logrus.Fields{
		"sport":       sport,
		"players":     len(players),
		"projections": len(results),
	}).Info("league projected")

	o.insights.PublishProjections(ctx, sport, cache.DateKey(date), results)
	return results, nil
}

// projectBatch projects each player concurrently and waits for all of them.
// Failed players are logged and left out; order follows the input.
func (o *Orchestrator) projectBatch(ctx context.Context, sport store.Sport, date time.Time, batch []store.ActivePlayer, log logrus.FieldLogger) []*store.Projection {
	out := make([]*store.Projection, len(batch))

	var wg sync.WaitGroup
	for i, player := range batch {
		wg.Add(1)
		go func(i int, player store.ActivePlayer) {
			defer wg.Done()

			p, err := o.projector.Project(ctx, player.PlayerID, date, sport)
			if err != nil {
				plog := log.WithFields(logrus.Fields{"sport": sport, "player_id": player.PlayerID})
				if errors.Is(err, projection.ErrInsufficientHistory) {
					o.metrics.ProjectionFailed(string(sport), "insufficient_history")
					plog.Debug("skipping player without history")
					return
				}
				o.metrics.ProjectionFailed(string(sport), "error")
				plog.WithError(err).Warn("projection failed")
				return
			}
			out[i] = p
		}(i, player)
	}
	wg.Wait()

	results := out[:0]
	for _, p := range out {
		if p != nil {
			results = append(results, p)
		}
	}
	return results
}

func (o *Orchestrator) publishInsights(
	ctx context.Context,
	runID string,
	all []*store.Projection,
	byLeague map[store.Sport][]*store.Projection,
	now time.Time,
	final bool,
	log logrus.FieldLogger,
) {
	ttl := insights.TTLFor(final)
	opts := insights.BuildOptions{
		TopN:     o.config.TopN,
		Date:     now,
		Final:    final,
		Now:      now,
		Location: o.loc,
	}

	bundle := insights.Build(all, opts)
	key, ok := o.insights.Publish(ctx, bundle, ttl)

	for _, sport := range o.config.Leagues {
		leagueOpts := opts
		leagueOpts.Sport = sport
		o.insights.Publish(ctx, insights.Build(byLeague[sport], leagueOpts), ttl)
	}

	if !ok || o.events == nil {
		return
	}
	err := o.events.PublishInsights(ctx, publisher.InsightsEvent{
		RunID:       runID,
		CacheKey:    key,
		Date:        bundle.Date,
		IsFinal:     bundle.IsFinal,
		TopCount:    len(bundle.TopFruit),
		GeneratedAt: bundle.GeneratedAt,
	})
	if err != nil {
		log.WithError(err).Warn("publishing insights event")
	}
}

// cleanup removes refresh logs, projections and stat lines older than their
// retention windows. Rows exactly at a cutoff are kept.
func (o *Orchestrator) cleanup(ctx context.Context, log logrus.FieldLogger) (int, error) {
	now := o.now().In(o.loc)
	today := store.DateOnly(now)

	logs, err := o.store.DeleteRefreshLogsBefore(ctx, now.Add(-o.config.LogRetention))
	if err != nil {
		return 0, fmt.Errorf("deleting refresh logs: %w", err)
	}
	projections, err := o.store.DeleteProjectionsBefore(ctx, daysBefore(today, o.config.ProjectionRetention))
	if err != nil {
		return int(logs), fmt.Errorf("deleting projections: %w", err)
	}
	stats, err := o.store.DeleteStatsBefore(ctx, daysBefore(today, o.config.StatsRetention))
	if err != nil {
		return int(logs + projections), fmt.Errorf("deleting stats: %w", err)
	}

	log.WithFields(logrus.Fields{
		"refresh_logs": logs,
		"projections":  projections,
		"stats":        stats,
	}).Info("cleanup complete")
	return int(logs + projections + stats), nil
}

// daysBefore steps back whole calendar days so DST shifts never move a date cutoff
func daysBefore(day time.Time, window time.Duration) time.Time {
	return day.AddDate(0, 0, -int(window/(24*time.Hour)))
}
