package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pomona"

// Recorder owns the service's prometheus collectors. A nil *Recorder is a
// valid no-op so components can be constructed without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	projections      *prometheus.CounterVec
	projectionErrors *prometheus.CounterVec
	batches          *prometheus.CounterVec
	cacheFailures    *prometheus.CounterVec
	upstreamCalls    *prometheus.CounterVec
	httpRequests     *prometheus.HistogramVec
}

// NewRecorder registers all collectors on a private registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Refresh job runs by job kind and final status.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Refresh job wall time.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projections_computed_total",
			Help:      "Player projections successfully computed.",
		}, []string{"sport"}),
		projectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_failures_total",
			Help:      "Player projections skipped because of an error.",
		}, []string{"sport", "reason"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_batches_total",
			Help:      "Projection batches processed.",
		}, []string{"sport"}),
		cacheFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_publish_failures_total",
			Help:      "Cache publications that failed and were swallowed.",
		}, []string{"kind"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Sports data API requests by league and outcome.",
		}, []string{"league", "outcome"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "REST API latency by method, route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}

	reg.MustRegister(
		r.jobRuns, r.jobDuration, r.projections, r.projectionErrors,
		r.batches, r.cacheFailures, r.upstreamCalls, r.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler exposes the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveJob records a finished job run.
func (r *Recorder) ObserveJob(job, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.jobRuns.WithLabelValues(job, status).Inc()
	r.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// AddProjections counts computed projections for a sport.
func (r *Recorder) AddProjections(sport string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.projections.WithLabelValues(sport).Add(float64(n))
}

// ProjectionFailed counts a skipped player.
func (r *Recorder) ProjectionFailed(sport, reason string) {
	if r == nil {
		return
	}
	r.projectionErrors.WithLabelValues(sport, reason).Inc()
}

// BatchProcessed counts a finished batch.
func (r *Recorder) BatchProcessed(sport string) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(sport).Inc()
}

// CacheFailed counts a swallowed cache error.
func (r *Recorder) CacheFailed(kind string) {
	if r == nil {
		return
	}
	r.cacheFailures.WithLabelValues(kind).Inc()
}

// UpstreamCall counts a sports data API request.
func (r *Recorder) UpstreamCall(league string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.upstreamCalls.WithLabelValues(league, outcome).Inc()
}

// ObserveRequest records one served HTTP request.
func (r *Recorder) ObserveRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
