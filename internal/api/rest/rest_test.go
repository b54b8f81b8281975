package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/metrics"
	"github.com/fortuna/pomona/internal/scheduler"
	"github.com/fortuna/pomona/internal/service"
	"github.com/fortuna/pomona/internal/store"
	"github.com/fortuna/pomona/internal/store/memstore"
)

var day = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

type fakeRunner struct {
	err error
}

func (f *fakeRunner) RunJob(context.Context, scheduler.JobKind) error { return f.err }

func (f *fakeRunner) Status() scheduler.Status {
	return scheduler.Status{Scheduled: true, Timezone: "America/Chicago"}
}

type testAPI struct {
	router  http.Handler
	store   *memstore.Store
	runner  *fakeRunner
	metrics *metrics.Recorder
}

func newTestAPI(t *testing.T, cacheDown bool) *testAPI {
	t.Helper()
	st := memstore.New()
	c := cache.NewMemoryCache(nil)
	runner := &fakeRunner{}
	rec := metrics.NewRecorder()
	log := logging.Discard()

	require.NoError(t, st.SaveProjections(context.Background(), []*store.Projection{
		{PlayerID: 1, GameID: 1, Sport: store.SportNBA, ProjectionDate: day, FruitScore: 40},
		{PlayerID: 2, GameID: 1, Sport: store.SportNBA, ProjectionDate: day, FruitScore: 85},
		{PlayerID: 3, GameID: 2, Sport: store.SportNFL, ProjectionDate: day, FruitScore: 60},
	}))

	cachePing := service.PingFunc(c.HealthCheck)
	if cacheDown {
		cachePing = func(context.Context) error { return errors.New("redis unreachable") }
	}

	h := NewHandler(
		service.NewInsightService(c, st, time.UTC, log),
		service.NewProjectionService(c, st, log),
		service.NewRefreshService(runner, st, log),
		service.NewHealthService(st, cachePing),
		log,
	)
	return &testAPI{router: NewRouter(h, rec, log), store: st, runner: runner, metrics: rec}
}

func (a *testAPI) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	rec := newTestAPI(t, false).do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var report service.HealthReport
	decode(t, rec, &report)
	assert.Equal(t, service.StatusHealthy, report.Status)

	rec = newTestAPI(t, true).do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &report)
	assert.Equal(t, service.StatusDegraded, report.Status)
}

func TestGetProjections(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(t, http.MethodGet, "/api/v1/projections?date=2025-01-10&sport=nba&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var list service.ProjectionList
	decode(t, rec, &list)
	assert.Equal(t, "2025-01-10", list.Date)
	assert.Equal(t, store.SportNBA, list.Sport)
	require.Len(t, list.Projections, 1)
	assert.Equal(t, 2, list.Projections[0].PlayerID)

	rec = api.do(t, http.MethodGet, "/api/v1/projections?date=2025-01-10")
	decode(t, rec, &list)
	assert.Equal(t, 3, list.Count)
}

func TestBadRequests(t *testing.T) {
	api := newTestAPI(t, false)

	for _, target := range []string{
		"/api/v1/projections?date=01-10-2025",
		"/api/v1/projections?date=2025-01-10&sport=MLB",
		"/api/v1/projections?date=2025-01-10&limit=-1",
		"/api/v1/insights?date=tomorrow",
		"/api/v1/refresh/logs?limit=ten",
	} {
		rec := api.do(t, http.MethodGet, target)
		assert.Equalf(t, http.StatusBadRequest, rec.Code, target)

		var body map[string]any
		decode(t, rec, &body)
		assert.EqualValues(t, http.StatusBadRequest, body["status"])
		assert.NotEmpty(t, body["error"])
	}
}

func TestGetInsightsFallsBackToStore(t *testing.T) {
	rec := newTestAPI(t, false).do(t, http.MethodGet, "/api/v1/insights?date=2025-01-10")
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Date     string             `json:"date"`
		Source   string             `json:"source"`
		TopFruit []store.Projection `json:"top_fruit"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "2025-01-10", res.Date)
	assert.Equal(t, service.SourceStore, res.Source)
	require.Len(t, res.TopFruit, 3)
	assert.Equal(t, 85, res.TopFruit[0].FruitScore)
}

func TestGetPlayerProjection(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(t, http.MethodGet, "/api/v1/players/3/projection?date=2025-01-10")
	require.Equal(t, http.StatusOK, rec.Code)
	var p store.Projection
	decode(t, rec, &p)
	assert.Equal(t, store.SportNFL, p.Sport)

	rec = api.do(t, http.MethodGet, "/api/v1/players/9/projection?date=2025-01-10")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/players/abc/projection")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerJob(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(t, http.MethodPost, "/api/v1/refresh/pregame_update")
	require.Equal(t, http.StatusOK, rec.Code)
	var res service.RunResult
	decode(t, rec, &res)
	assert.Equal(t, scheduler.JobPregameUpdate, res.Job)

	rec = api.do(t, http.MethodPost, "/api/v1/refresh/backfill")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	api.runner.err = errors.New("sports api unavailable")
	rec = api.do(t, http.MethodPost, "/api/v1/refresh/full_refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	decode(t, rec, &res)
	assert.Equal(t, string(store.RefreshError), res.Status)

	rec = api.do(t, http.MethodGet, "/api/v1/refresh/full_refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefreshLogsAndStatus(t *testing.T) {
	api := newTestAPI(t, false)
	require.NoError(t, api.store.StartRefreshLog(context.Background(), &store.RefreshLog{
		JobKind:   string(scheduler.JobMiddayUpdate),
		StartedAt: day,
	}))

	rec := api.do(t, http.MethodGet, "/api/v1/refresh/logs")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Logs  []store.RefreshLog `json:"logs"`
		Count int                `json:"count"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, store.RefreshRunning, body.Logs[0].Status)

	rec = api.do(t, http.MethodGet, "/api/v1/scheduler/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status scheduler.Status
	decode(t, rec, &status)
	assert.True(t, status.Scheduled)
	assert.Equal(t, "America/Chicago", status.Timezone)
}

func TestCORSPreflight(t *testing.T) {
	rec := newTestAPI(t, false).do(t, http.MethodOptions, "/api/v1/refresh/full_refresh")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagation(t *testing.T) {
	api := newTestAPI(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "not a valid id!")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.NotEqual(t, "not a valid id!", rec.Header().Get(requestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	api := newTestAPI(t, false)
	api.do(t, http.MethodGet, "/api/v1/players/3/projection?date=2025-01-10")

	rec := api.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `route="/api/v1/players/{playerID:[0-9]+}/projection"`))

	n, err := testutil.GatherAndCount(api.metrics.Registry(), "pomona_http_request_duration_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
