package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandlers_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewPrometheusMetrics(registry).SetPreviewSessions(2)

	mux := http.NewServeMux()
	RegisterHandlers(mux, HTTPHandlerOptions{EnableMetrics: true, Registry: registry})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# HELP mcpapps_preview_sessions")
}

func TestRegisterHandlers_Healthz(t *testing.T) {
	healthy := true
	mux := http.NewServeMux()
	RegisterHandlers(mux, HTTPHandlerOptions{
		EnableHealthz: true,
		Health: func() HealthReport {
			if healthy {
				return HealthReport{Status: "ok", Entities: map[string]int{"tool": 1}}
			}
			return HealthReport{Status: "degraded"}
		},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 1, report.Entities["tool"])

	healthy = false
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
