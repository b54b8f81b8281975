package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownJob is returned by RunJob for an unrecognized job kind
var ErrUnknownJob = errors.New("unknown job")

// JobKind names a refresh job
type JobKind string

const (
	JobFullRefresh   JobKind = "full_refresh"
	JobMiddayUpdate  JobKind = "midday_update"
	JobPregameUpdate JobKind = "pregame_update"
	JobWeeklyCleanup JobKind = "weekly_cleanup"
)

// Jobs lists every job kind in trigger order
var Jobs = []JobKind{JobFullRefresh, JobMiddayUpdate, JobPregameUpdate, JobWeeklyCleanup}

// ParseJob resolves a job kind by name
func ParseJob(name string) (JobKind, error) {
	for _, kind := range Jobs {
		if string(kind) == name {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

// failFast reports whether a job's errors are returned to the caller rather
// than logged and swallowed.
func (k JobKind) failFast() bool {
	return k == JobFullRefresh
}

// Trigger is a wall-clock point in the home zone at which a job fires.
// A nil Weekday fires daily.
type Trigger struct {
	Job     JobKind
	Hour    int
	Minute  int
	Weekday *time.Weekday
}

// Spec renders the trigger as a five-field cron expression
func (t Trigger) Spec() string {
	dow := "*"
	if t.Weekday != nil {
		dow = fmt.Sprintf("%d", int(*t.Weekday))
	}
	return fmt.Sprintf("%d %d * * %s", t.Minute, t.Hour, dow)
}

// DefaultTriggers returns the daily schedule: 06:00 full refresh, 12:00
// midday update, 17:00 pregame update and Sunday 02:00 cleanup.
func DefaultTriggers() []Trigger {
	sunday := time.Sunday
	return []Trigger{
		{Job: JobFullRefresh, Hour: 6},
		{Job: JobMiddayUpdate, Hour: 12},
		{Job: JobPregameUpdate, Hour: 17},
		{Job: JobWeeklyCleanup, Hour: 2, Weekday: &sunday},
	}
}

type catchUpWindow struct {
	from, to int // hours, [from, to)
	job      JobKind
}

var catchUpWindows = []catchUpWindow{
	{from: 6, to: 12, job: JobFullRefresh},
	{from: 12, to: 17, job: JobMiddayUpdate},
	{from: 17, to: 24, job: JobPregameUpdate},
}

// CatchUpJob returns the job to run when the process starts at t (already in
// the home zone). Before 06:00 nothing is owed.
func CatchUpJob(t time.Time) (JobKind, bool) {
	hour := t.Hour()
	for _, w := range catchUpWindows {
		if hour >= w.from && hour < w.to {
			return w.job, true
		}
	}
	return "", false
}
