package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/scheduler"
	"github.com/fortuna/pomona/internal/store"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 200
)

// JobRunner runs refresh jobs and reports scheduler state
type JobRunner interface {
	RunJob(ctx context.Context, kind scheduler.JobKind) error
	Status() scheduler.Status
}

// RefreshLogStore reads the refresh audit trail
type RefreshLogStore interface {
	RecentRefreshLogs(ctx context.Context, limit int) ([]*store.RefreshLog, error)
}

// RunResult reports a manually triggered job
type RunResult struct {
	Job      scheduler.JobKind `json:"job"`
	Status   string            `json:"status"`
	Duration string            `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

// RefreshService exposes manual job triggers and the refresh audit trail
type RefreshService struct {
	runner JobRunner
	logs   RefreshLogStore
	log    logrus.FieldLogger
}

// NewRefreshService creates a new refresh service
func NewRefreshService(runner JobRunner, logs RefreshLogStore, log logrus.FieldLogger) *RefreshService {
	return &RefreshService{
		runner: runner,
		logs:   logs,
		log:    logging.Component(log, "refresh_service"),
	}
}

// Trigger runs the named job to completion. Unknown names return
// scheduler.ErrUnknownJob; a failed full refresh returns its error.
func (s *RefreshService) Trigger(ctx context.Context, name string) (*RunResult, error) {
	kind, err := scheduler.ParseJob(name)
	if err != nil {
		return nil, err
	}

	s.log.WithField("job", kind).Info("manual trigger")
	start := time.Now()
	err = s.runner.RunJob(ctx, kind)

	result := &RunResult{
		Job:      kind,
		Status:   string(store.RefreshSuccess),
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Status = string(store.RefreshError)
		result.Error = err.Error()
		return result, fmt.Errorf("running %s: %w", kind, err)
	}
	return result, nil
}

// Logs returns the newest refresh log rows. The limit is clamped to [1, 200].
func (s *RefreshService) Logs(ctx context.Context, limit int) ([]*store.RefreshLog, error) {
	switch {
	case limit <= 0:
		limit = defaultLogLimit
	case limit > maxLogLimit:
		limit = maxLogLimit
	}

	logs, err := s.logs.RecentRefreshLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("loading refresh logs: %w", err)
	}
	if logs == nil {
		logs = []*store.RefreshLog{}
	}
	return logs, nil
}

// Status reports the scheduler state
func (s *RefreshService) Status() scheduler.Status {
	return s.runner.Status()
}
