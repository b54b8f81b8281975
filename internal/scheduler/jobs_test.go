package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pomona/internal/store"
)

func TestCatchUpJob(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2025, 1, 10, hour, minute, 0, 0, chicago)
	}

	tests := []struct {
		at   time.Time
		want JobKind
		ok   bool
	}{
		{at: at(0, 0)},
		{at: at(5, 59)},
		{at: at(6, 0), want: JobFullRefresh, ok: true},
		{at: at(11, 59), want: JobFullRefresh, ok: true},
		{at: at(12, 0), want: JobMiddayUpdate, ok: true},
		{at: at(16, 59), want: JobMiddayUpdate, ok: true},
		{at: at(17, 0), want: JobPregameUpdate, ok: true},
		{at: at(23, 59), want: JobPregameUpdate, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.at.Format("15:04"), func(t *testing.T) {
			got, ok := CatchUpJob(tt.at)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultTriggerSpecs(t *testing.T) {
	specs := map[JobKind]string{}
	for _, trigger := range DefaultTriggers() {
		specs[trigger.Job] = trigger.Spec()
	}

	assert.Equal(t, map[JobKind]string{
		JobFullRefresh:   "0 6 * * *",
		JobMiddayUpdate:  "0 12 * * *",
		JobPregameUpdate: "0 17 * * *",
		JobWeeklyCleanup: "0 2 * * 0",
	}, specs)
}

func TestStartRegistersTriggersInHomeZone(t *testing.T) {
	h := newHarness(t, 0, morning())
	h.orch.config.DisableCatchUp = true

	before := h.orch.Status()
	assert.False(t, before.Scheduled)
	assert.False(t, before.Running)
	assert.Len(t, before.Triggers, 4)
	assert.Equal(t, "America/Chicago", before.Timezone)
	assert.Equal(t, "1/10/2025, 9:00:00 AM", before.HomeTime)

	require.NoError(t, h.orch.Start(context.Background()))
	defer h.orch.Stop()
	assert.Error(t, h.orch.Start(context.Background()))

	status := h.orch.Status()
	assert.True(t, status.Scheduled)
	require.Len(t, status.Triggers, 4)
	for _, trigger := range status.Triggers {
		require.NotNil(t, trigger.Next, trigger.Job)
		assert.Equal(t, "America/Chicago", trigger.Next.Location().String())
		assert.Zero(t, trigger.Next.Minute())
	}
	assert.Empty(t, h.logs(t), "no catch-up run")
}

func TestStartRunsCatchUpJob(t *testing.T) {
	h := newHarness(t, 2, morning())

	require.NoError(t, h.orch.Start(context.Background()))
	defer h.orch.Stop()

	require.Eventually(t, func() bool {
		logs := h.logs(t)
		return len(logs) == 1 && logs[0].Status != store.RefreshRunning
	}, 2*time.Second, 10*time.Millisecond)

	logs := h.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, string(JobFullRefresh), logs[0].JobKind)
	assert.Equal(t, 2, h.store.ProjectionCount())
}
