package telemetry

import (
	"time"

	"github.com/mcpapps/mcpapps/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveCollect(_ time.Duration, _ map[domain.Kind]int) {}

func (n *NoopMetrics) ObserveBuild(_ domain.Framework, _ time.Duration, _ domain.BuildStatus) {}

func (n *NoopMetrics) ObserveHTMLServed(_ domain.BuildSource) {}

func (n *NoopMetrics) ObserveToolRun(_ string, _ time.Duration, _ error) {}

func (n *NoopMetrics) SetPreviewSessions(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
