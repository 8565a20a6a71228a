package telemetry

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthReport is the body served on /healthz.
type HealthReport struct {
	Status   string         `json:"status"`
	Entities map[string]int `json:"entities,omitempty"`
}

// HealthFunc reports the current health; nil means always ok.
type HealthFunc func() HealthReport

type HTTPHandlerOptions struct {
	EnableMetrics bool
	EnableHealthz bool
	Health        HealthFunc
	Registry      prometheus.Gatherer
}

// RegisterHandlers mounts /metrics and /healthz on mux.
func RegisterHandlers(mux *http.ServeMux, opts HTTPHandlerOptions) {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultGatherer
	}
	if opts.EnableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("/healthz", healthHandler(opts.Health))
	}
}

func healthHandler(health HealthFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := HealthReport{Status: "ok"}
		if health != nil {
			report = health()
		}

		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
}
