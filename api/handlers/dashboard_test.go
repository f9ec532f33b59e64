package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orcest-ai/rainymodel/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAnalytics() *metrics.AnalyticsStore {
	a := metrics.NewAnalyticsStore(0, 0)
	a.Record(metrics.RequestRecord{
		ModelAlias: "rainymodel/auto", Upstream: "hf", Route: "free", Policy: "auto",
		LatencyMS: 120, Success: true, StatusCode: 200, InputTokens: 10, OutputTokens: 5,
	})
	a.Log("INFO", "started", nil)
	return a
}

func TestDashboardHandler_RequiresKeyWhenConfigured(t *testing.T) {
	t.Parallel()
	h := NewDashboardHandler(seedAnalytics(), "secret")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard/api/overview", nil)
	h.HandleOverview(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/dashboard/api/overview?key=secret", nil)
	h.HandleOverview(w2, r2)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestDashboardHandler_NoKeyConfiguredAllowsAll(t *testing.T) {
	t.Parallel()
	h := NewDashboardHandler(seedAnalytics(), "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard/api/overview", nil)
	h.HandleOverview(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	var overview map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&overview))
	assert.EqualValues(t, 1, overview["total"])
}

func TestDashboardHandler_RequestLogRespectsLimit(t *testing.T) {
	t.Parallel()
	h := NewDashboardHandler(seedAnalytics(), "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard/api/request-log?limit=1", nil)
	h.HandleRequestLog(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var rows []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	assert.Len(t, rows, 1)
}

func TestDashboardHandler_HandlePageServesHTML(t *testing.T) {
	t.Parallel()
	h := NewDashboardHandler(seedAnalytics(), "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	h.HandlePage(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "RainyModel Dashboard")
}

func TestDashboardHandler_SystemLogFiltersByLevel(t *testing.T) {
	t.Parallel()
	a := seedAnalytics()
	a.Log("ERROR", "boom", nil)
	h := NewDashboardHandler(a, "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard/api/system-log?level=ERROR", nil)
	h.HandleSystemLog(w, r)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "boom", rows[0]["msg"])
}
