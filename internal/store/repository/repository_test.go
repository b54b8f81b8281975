package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitParamZeroMeansAll(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  interface{}
	}{
		{"zero binds NULL", 0, nil},
		{"negative binds NULL", -5, nil},
		{"positive binds value", 25, int64(25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := limitParam(tt.limit).Value()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestDateParam(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	assert.Equal(t, "2025-01-10", dateParam(time.Date(2025, 1, 10, 23, 30, 0, 0, chicago)))
}
