package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcpapps/mcpapps/internal/domain"
)

type PrometheusMetrics struct {
	collectDuration prometheus.Histogram
	entities        *prometheus.GaugeVec
	buildDuration   *prometheus.HistogramVec
	builds          *prometheus.CounterVec
	htmlServed      *prometheus.CounterVec
	toolRuns        *prometheus.HistogramVec
	previewSessions prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		collectDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mcpapps_collect_duration_seconds",
				Help:    "Duration of entity collection passes in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		entities: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpapps_entities",
				Help: "Entities found by the latest collection pass",
			},
			[]string{"kind"},
		),
		buildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpapps_subbuild_duration_seconds",
				Help:    "Duration of isolated ui sub-builds in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"framework", "status"},
		),
		builds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpapps_subbuilds_total",
				Help: "Total number of isolated ui sub-builds",
			},
			[]string{"framework", "status"},
		),
		htmlServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpapps_html_served_total",
				Help: "Ui documents served, by origin",
			},
			[]string{"source"},
		),
		toolRuns: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpapps_preview_tool_run_seconds",
				Help:    "Duration of tool runs issued from the preview host",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"tool", "status"},
		),
		previewSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpapps_preview_sessions",
				Help: "Open preview sessions",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveCollect(duration time.Duration, counts map[domain.Kind]int) {
	p.collectDuration.Observe(duration.Seconds())
	for kind, count := range counts {
		p.entities.WithLabelValues(string(kind)).Set(float64(count))
	}
}

func (p *PrometheusMetrics) ObserveBuild(framework domain.Framework, duration time.Duration, status domain.BuildStatus) {
	p.buildDuration.WithLabelValues(string(framework), string(status)).Observe(duration.Seconds())
	p.builds.WithLabelValues(string(framework), string(status)).Inc()
}

func (p *PrometheusMetrics) ObserveHTMLServed(source domain.BuildSource) {
	p.htmlServed.WithLabelValues(string(source)).Inc()
}

func (p *PrometheusMetrics) ObserveToolRun(tool string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.toolRuns.WithLabelValues(tool, status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) SetPreviewSessions(count int) {
	p.previewSessions.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
