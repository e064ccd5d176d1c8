package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/workspace-panel/internal/metrics"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.NewMetrics(prometheus.NewRegistry())
		metrics.NewMetrics(prometheus.NewRegistry())
	})
}

func TestMetrics_RecordersDoNotPanic(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", "/api/workspaces", 200, 10*time.Millisecond)
	m.RecordResponseSize("GET", "/api/workspaces", 512)
	m.IncRequestsInFlight()
	m.DecRequestsInFlight()
	m.RecordProvisioningCall("create_project", "ok", time.Second)
	m.SetPoolClients(3)
	m.RecordMirrorOperation("upsert", "inactive")
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.SetHealthStatus(true)
	m.SetHealthStatus(false)
}

func TestMetricsMiddleware_LabelsByRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	router := mux.NewRouter()
	router.Use(metrics.MetricsMiddleware(m))
	router.HandleFunc("/api/workspace-data/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodGet, "/api/workspace-data/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	count, err := testutil.GatherAndCount(reg, "workspace_panel_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "all ids should collapse into one route series")
}

func TestMetrics_MirrorOperationsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordMirrorOperation("delete", "failed")

	count, err := testutil.GatherAndCount(reg, "workspace_panel_mirror_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
