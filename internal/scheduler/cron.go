package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// homeTimeLayout renders the current time in the home zone
const homeTimeLayout = "1/2/2006, 3:04:05 PM"

// TriggerStatus is one registered trigger with its next fire time
type TriggerStatus struct {
	Job      JobKind    `json:"job"`
	Schedule string     `json:"schedule"`
	Next     *time.Time `json:"next,omitempty"`
}

// Status reports the orchestrator's runtime state
type Status struct {
	Scheduled  bool            `json:"scheduled"`
	Running    bool            `json:"running"`
	ActiveRuns int             `json:"active_runs"`
	Timezone   string          `json:"timezone"`
	HomeTime   string          `json:"home_time"`
	Triggers   []TriggerStatus `json:"triggers"`
}

// Start registers the configured triggers with a cron scheduler in the home
// zone and starts it. When catch-up is enabled, the job owed for the current
// hour runs once in the background.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New(
		cron.WithLocation(o.loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(o.log))),
	)
	entries := make(map[cron.EntryID]Trigger, len(o.config.Triggers))
	for _, trigger := range o.config.Triggers {
		job := trigger.Job
		id, err := c.AddFunc(trigger.Spec(), func() { o.runScheduled(job) })
		if err != nil {
			return fmt.Errorf("registering %s at %q: %w", job, trigger.Spec(), err)
		}
		entries[id] = trigger
		o.log.WithFields(logrus.Fields{"job": job, "schedule": trigger.Spec()}).Info("trigger registered")
	}

	o.baseCtx, o.cancel = context.WithCancel(ctx)
	o.cron = c
	o.entries = entries
	c.Start()

	if !o.config.DisableCatchUp {
		if job, ok := CatchUpJob(o.now().In(o.loc)); ok {
			o.log.WithField("job", job).Info("running catch-up job")
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.runScheduled(job)
			}()
		}
	}

	o.log.WithField("timezone", o.loc.String()).Info("scheduler started")
	return nil
}

func (o *Orchestrator) runScheduled(job JobKind) {
	if err := o.RunJob(o.baseCtx, job); err != nil {
		o.log.WithError(err).WithField("job", job).Error("scheduled job failed")
	}
}

// Stop halts the cron scheduler, cancels in-flight runs and waits for them
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	c := o.cron
	cancel := o.cancel
	o.mu.Unlock()

	if c == nil {
		return
	}

	o.log.Info("stopping scheduler")
	done := c.Stop()
	cancel()
	<-done.Done()
	o.wg.Wait()
	o.log.Info("scheduler stopped")
}

// Status returns the running flag, registered triggers and the home time
func (o *Orchestrator) Status() Status {
	now := o.now().In(o.loc)
	status := Status{
		Running:    o.active.Load() > 0,
		ActiveRuns: int(o.active.Load()),
		Timezone:   o.loc.String(),
		HomeTime:   now.Format(homeTimeLayout),
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cron == nil {
		for _, trigger := range o.config.Triggers {
			status.Triggers = append(status.Triggers, TriggerStatus{Job: trigger.Job, Schedule: trigger.Spec()})
		}
		return status
	}

	status.Scheduled = true
	for _, entry := range o.cron.Entries() {
		trigger := o.entries[entry.ID]
		ts := TriggerStatus{Job: trigger.Job, Schedule: trigger.Spec()}
		if !entry.Next.IsZero() {
			next := entry.Next.In(o.loc)
			ts.Next = &next
		}
		status.Triggers = append(status.Triggers, ts)
	}
	sort.SliceStable(status.Triggers, func(i, j int) bool {
		a, b := status.Triggers[i].Next, status.Triggers[j].Next
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})
	return status
}
