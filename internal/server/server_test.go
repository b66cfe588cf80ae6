package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	"github.com/darkkaiser/openbar-notifier/internal/runner"
)

func TestServerEndpoints(t *testing.T) {
	status := NewStatusStore()
	srv := New(8080, status)

	request := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Healthz responds ok", func(t *testing.T) {
		rec := request("/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ok")
	})

	t.Run("Status starts empty", func(t *testing.T) {
		rec := request("/api/v1/status")
		require.Equal(t, http.StatusOK, rec.Code)

		var view StatusView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.False(t, view.Running)
		assert.Nil(t, view.LastReport)
		assert.Nil(t, view.NextRunAt)
		assert.GreaterOrEqual(t, view.UptimeSeconds, int64(0))
	})

	t.Run("Status reflects the last report", func(t *testing.T) {
		nextRunAt := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
		status.SetReport(runner.Report{
			Phase:       runner.PhaseDone,
			Sequence:    3,
			EventCounts: map[diff.Kind]int{diff.KindRestocked: 1},
		})
		status.SetNextRunAt(nextRunAt)
		status.SetRunning(true)

		rec := request("/api/v1/status")
		require.Equal(t, http.StatusOK, rec.Code)

		var view StatusView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.True(t, view.Running)
		require.NotNil(t, view.LastReport)
		assert.Equal(t, runner.PhaseDone, view.LastReport.Phase)
		assert.Equal(t, uint64(3), view.LastReport.Sequence)
		require.NotNil(t, view.NextRunAt)
		assert.True(t, nextRunAt.Equal(*view.NextRunAt))
	})

	t.Run("Metrics endpoint is exposed", func(t *testing.T) {
		rec := request("/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
