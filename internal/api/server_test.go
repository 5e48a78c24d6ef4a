package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

func newTestServer() (*Server, *RunLog) {
	runs := NewRunLog(4)
	return NewServer(runs, zap.NewNop()), runs
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLatestRunNotFoundWhenEmpty(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestRunReturnsMostRecent(t *testing.T) {
	t.Parallel()

	srv, runs := newTestServer()
	runs.Record(harvester.RunSummary{RunID: "run-1", Mode: harvester.ModeHarvest})
	runs.Record(harvester.RunSummary{RunID: "run-2", Mode: harvester.ModeSiteMap, Started: time.Now().UTC()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary harvester.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-2", summary.RunID)
	assert.Equal(t, harvester.ModeSiteMap, summary.Mode)
}

func TestRunLogEvictsOldest(t *testing.T) {
	t.Parallel()

	runs := NewRunLog(2)
	runs.Record(harvester.RunSummary{RunID: "run-1"})
	runs.Record(harvester.RunSummary{RunID: "run-2"})
	runs.Record(harvester.RunSummary{RunID: "run-3"})

	all := runs.All()
	require.Len(t, all, 2)
	assert.Equal(t, "run-2", all[0].RunID)
	assert.Equal(t, "run-3", all[1].RunID)
}
