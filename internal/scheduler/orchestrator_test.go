package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/insights"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/metrics"
	"github.com/fortuna/pomona/internal/projection"
	"github.com/fortuna/pomona/internal/publisher"
	"github.com/fortuna/pomona/internal/store"
	"github.com/fortuna/pomona/internal/store/memstore"
)

var chicago = func() *time.Location {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		panic(err)
	}
	return loc
}()

type fakeProjector struct {
	fail  map[int]error
	calls atomic.Int32
}

func (f *fakeProjector) Project(_ context.Context, playerID int, date time.Time, sport store.Sport) (*store.Projection, error) {
	f.calls.Add(1)
	if err := f.fail[playerID]; err != nil {
		return nil, err
	}
	score := 45 + playerID%50
	return &store.Projection{
		PlayerID:       playerID,
		Sport:          sport,
		ProjectionDate: store.DateOnly(date),
		Stats:          map[store.Stat]float64{store.StatPoints: float64(playerID)},
		FruitScore:     score,
		Confidence:     projection.Tier(score),
		Trend:          store.Trend{Direction: store.TrendStable},
		Method:         projection.MethodWeightedContextual,
	}, nil
}

type fakeRefresher struct {
	err   error
	calls []string
	mu    sync.Mutex
}

func (f *fakeRefresher) record(step string, sport store.Sport) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%s", step, sport))
	return 3, f.err
}

func (f *fakeRefresher) RefreshAll(_ context.Context, sport store.Sport) (int, error) {
	return f.record("all", sport)
}

func (f *fakeRefresher) RefreshAvailability(_ context.Context, sport store.Sport) (int, error) {
	return f.record("availability", sport)
}

func (f *fakeRefresher) RefreshLineups(_ context.Context, sport store.Sport) (int, error) {
	return f.record("lineups", sport)
}

type recordingEvents struct {
	mu       sync.Mutex
	refresh  []publisher.RefreshEvent
	insights []publisher.InsightsEvent
}

func (r *recordingEvents) PublishRefresh(_ context.Context, e publisher.RefreshEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh = append(r.refresh, e)
	return nil
}

func (r *recordingEvents) PublishInsights(_ context.Context, e publisher.InsightsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insights = append(r.insights, e)
	return nil
}

type brokenCache struct{ cache.Cache }

func (brokenCache) Set(context.Context, string, any, time.Duration) error {
	return fmt.Errorf("set: %w", cache.ErrCache)
}

type harness struct {
	store     *memstore.Store
	cache     *cache.MemoryCache
	projector *fakeProjector
	refresher *fakeRefresher
	events    *recordingEvents
	metrics   *metrics.Recorder
	now       time.Time
	orch      *Orchestrator
}

// newHarness seeds players NBA players on one team with a game on 2025-01-10.
// Without an override it publishes to the harness memory cache.
func newHarness(t *testing.T, players int, now time.Time, override ...cache.Cache) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		store:     memstore.New(),
		projector: &fakeProjector{fail: map[int]error{}},
		refresher: &fakeRefresher{},
		events:    &recordingEvents{},
		metrics:   metrics.NewRecorder(),
		now:       now,
	}
	h.cache = cache.NewMemoryCache(func() time.Time { return h.now })

	home := store.Team{Sport: store.SportNBA, ExternalID: "1", Abbreviation: "CHI", Name: "Bulls"}
	away := store.Team{Sport: store.SportNBA, ExternalID: "2", Abbreviation: "BOS", Name: "Celtics"}
	require.NoError(t, h.store.UpsertTeam(ctx, &home))
	require.NoError(t, h.store.UpsertTeam(ctx, &away))

	game := store.Game{
		Sport:      store.SportNBA,
		ExternalID: "g1",
		Season:     "2025",
		GameDate:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		HomeTeamID: home.TeamID,
		AwayTeamID: away.TeamID,
		Status:     store.GameStatusScheduled,
	}
	require.NoError(t, h.store.UpsertGame(ctx, &game))

	for i := 1; i <= players; i++ {
		p := store.Player{
			Sport:      store.SportNBA,
			ExternalID: fmt.Sprintf("p%d", i),
			FirstName:  "Player",
			LastName:   fmt.Sprintf("%d", i),
			TeamID:     sql.NullInt32{Int32: int32(home.TeamID), Valid: true},
			Status:     store.AvailabilityActive,
		}
		require.NoError(t, h.store.UpsertPlayer(ctx, &p))
	}

	var c cache.Cache = h.cache
	if len(override) > 0 {
		c = override[0]
	}

	pub := insights.NewPublisher(c, h.metrics, logging.Discard())
	cfg := Config{Leagues: []store.Sport{store.SportNBA}, BatchSize: 50}
	h.orch = NewOrchestrator(h.store, h.projector, pub, cfg, logging.Discard(),
		WithRefresher(h.refresher),
		WithEvents(h.events),
		WithMetrics(h.metrics),
		WithLocation(chicago),
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

func morning() time.Time {
	return time.Date(2025, 1, 10, 9, 0, 0, 0, chicago)
}

func (h *harness) logs(t *testing.T) []*store.RefreshLog {
	t.Helper()
	logs, err := h.store.RecentRefreshLogs(context.Background(), 10)
	require.NoError(t, err)
	return logs
}

func TestFullRefreshBatchesAndSkipsFailedPlayers(t *testing.T) {
	h := newHarness(t, 60, morning())
	h.projector.fail[37] = errors.New("bad box score")
	h.projector.fail[12] = fmt.Errorf("player 12: %w", projection.ErrInsufficientHistory)

	require.NoError(t, h.orch.RunJob(context.Background(), JobFullRefresh))

	assert.EqualValues(t, 60, h.projector.calls.Load())
	assert.Equal(t, 58, h.store.ProjectionCount())
	assert.Equal(t, []string{"all:NBA"}, h.refresher.calls)

	expected := `
# HELP pomona_projection_batches_total Projection batches processed.
# TYPE pomona_projection_batches_total counter
pomona_projection_batches_total{sport="NBA"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "pomona_projection_batches_total"))

	logs := h.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, store.RefreshSuccess, logs[0].Status)
	assert.Equal(t, 58, logs[0].RecordsProcessed)
	assert.True(t, logs[0].CompletedAt.Valid)

	cached, err := insights.LoadProjections(context.Background(), h.cache, store.SportNBA, "2025-01-10")
	require.NoError(t, err)
	assert.Len(t, cached, 58)

	bundle, err := insights.Load(context.Background(), h.cache, "2025-01-10", "")
	require.NoError(t, err)
	require.Len(t, bundle.TopFruit, insights.DefaultTopN)
	assert.False(t, bundle.IsFinal)
	assert.GreaterOrEqual(t, bundle.TopFruit[0].FruitScore, bundle.TopFruit[19].FruitScore)
	for _, p := range bundle.TopFruit {
		assert.NotEqual(t, 37, p.PlayerID)
	}

	_, err = insights.Load(context.Background(), h.cache, "2025-01-10", store.SportNBA)
	assert.NoError(t, err)

	require.Len(t, h.events.refresh, 1)
	assert.Equal(t, "success", h.events.refresh[0].Status)
	assert.Equal(t, logs[0].RunID, h.events.refresh[0].RunID)
	require.Len(t, h.events.insights, 1)
	assert.Equal(t, "daily_insights:2025-01-10", h.events.insights[0].CacheKey)
}

func TestFullRefreshPropagatesErrors(t *testing.T) {
	h := newHarness(t, 5, morning())
	boom := errors.New("upstream 503")
	h.refresher.err = boom

	err := h.orch.RunJob(context.Background(), JobFullRefresh)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Zero(t, h.projector.calls.Load())
	assert.Zero(t, h.store.ProjectionCount())

	logs := h.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, store.RefreshError, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage.String, "upstream 503")
	assert.Equal(t, "error", h.events.refresh[0].Status)
}

func TestMiddayUpdateSwallowsErrors(t *testing.T) {
	h := newHarness(t, 5, time.Date(2025, 1, 10, 12, 0, 0, 0, chicago))
	h.refresher.err = errors.New("timeout")

	require.NoError(t, h.orch.RunJob(context.Background(), JobMiddayUpdate))

	assert.Equal(t, []string{"availability:NBA"}, h.refresher.calls)
	logs := h.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, store.RefreshError, logs[0].Status)
}

func TestPregameUpdatePublishesFinalInsights(t *testing.T) {
	h := newHarness(t, 5, time.Date(2025, 1, 10, 17, 0, 0, 0, chicago))

	require.NoError(t, h.orch.RunJob(context.Background(), JobPregameUpdate))

	assert.Equal(t, []string{"lineups:NBA"}, h.refresher.calls)
	bundle, err := insights.Load(context.Background(), h.cache, "2025-01-10", "")
	require.NoError(t, err)
	assert.True(t, bundle.IsFinal)

	ttl, ok := h.cache.TTL(cache.InsightsKey("2025-01-10", ""))
	require.True(t, ok)
	assert.Equal(t, insights.FinalTTL, ttl)
}

func TestCacheFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, 5, morning(), brokenCache{})

	require.NoError(t, h.orch.RunJob(context.Background(), JobFullRefresh))

	assert.Equal(t, 5, h.store.ProjectionCount())
	assert.Equal(t, store.RefreshSuccess, h.logs(t)[0].Status)
	assert.Empty(t, h.events.insights)

	n, err := testutil.GatherAndCount(h.metrics.Registry(), "pomona_cache_publish_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "projections and insights kinds")
}

func TestWeeklyCleanupKeepsRowsAtCutoff(t *testing.T) {
	now := time.Date(2025, 3, 2, 2, 0, 0, 0, chicago)
	h := newHarness(t, 0, now)
	ctx := context.Background()

	cutoff := now.Add(-30 * 24 * time.Hour)
	for _, started := range []time.Time{cutoff, cutoff.Add(-time.Second)} {
		require.NoError(t, h.store.StartRefreshLog(ctx, &store.RefreshLog{RunID: "old", JobKind: "full_refresh", StartedAt: started}))
	}

	today := store.DateOnly(now)
	var old []*store.Projection
	for _, date := range []time.Time{today.AddDate(0, 0, -14), today.AddDate(0, 0, -15)} {
		old = append(old, &store.Projection{PlayerID: 1, Sport: store.SportNBA, ProjectionDate: date, Stats: map[store.Stat]float64{}})
	}
	require.NoError(t, h.store.SaveProjections(ctx, old))

	require.NoError(t, h.orch.RunJob(ctx, JobWeeklyCleanup))

	logs := h.logs(t)
	require.Len(t, logs, 2, "cleanup run and the row at the cutoff")
	for _, l := range logs {
		assert.False(t, l.StartedAt.Before(cutoff))
	}
	assert.Equal(t, store.RefreshSuccess, logs[0].Status)
	assert.Equal(t, 2, logs[0].RecordsProcessed)
	assert.Equal(t, 1, h.store.ProjectionCount())
	assert.Empty(t, h.refresher.calls)
}

func TestRunJobRejectsUnknownKind(t *testing.T) {
	h := newHarness(t, 0, morning())

	err := h.orch.RunJob(context.Background(), JobKind("hourly"))
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.Empty(t, h.logs(t))

	_, err = ParseJob("hourly")
	assert.ErrorIs(t, err, ErrUnknownJob)

	kind, err := ParseJob("pregame_update")
	require.NoError(t, err)
	assert.Equal(t, JobPregameUpdate, kind)
}

func TestRunJobWithoutRefresherProjectsStoredData(t *testing.T) {
	h := newHarness(t, 3, morning())
	h.orch.refresher = nil

	require.NoError(t, h.orch.RunJob(context.Background(), JobMiddayUpdate))
	assert.Equal(t, 3, h.store.ProjectionCount())
	assert.Empty(t, h.refresher.calls)
}
