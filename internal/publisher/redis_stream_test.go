package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamValues(t *testing.T) {
	at := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	event := RefreshEvent{
		RunID:            "run-1",
		Job:              "midday_update",
		Status:           "error",
		RecordsProcessed: 3,
		Error:            "upstream down",
		StartedAt:        at.Add(-time.Minute),
		CompletedAt:      at,
	}

	values, err := streamValues(event.Job, event, at)
	require.NoError(t, err)

	assert.Equal(t, "midday_update", values["type"])
	assert.Equal(t, at.Unix(), values["timestamp"])

	var decoded RefreshEvent
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, event.RunID, decoded.RunID)
	assert.Equal(t, event.Error, decoded.Error)
	assert.True(t, event.CompletedAt.Equal(decoded.CompletedAt))
}

func TestStreamValuesRejectsUnencodable(t *testing.T) {
	_, err := streamValues("bad", map[string]any{"ch": make(chan int)}, time.Now())
	assert.Error(t, err)
}
