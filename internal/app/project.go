package app

import (
	"github.com/evanw/esbuild/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/collector"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
	"github.com/mcpapps/mcpapps/internal/uibuild"
)

// Project bundles the configuration and build services of one project.
type Project struct {
	Config       domain.ProjectConfig
	Collector    *collector.Collector
	Orchestrator *uibuild.Orchestrator
	Logger       *zap.Logger
	Logs         *telemetry.LogBroadcaster
	Metrics      domain.Metrics
	Registry     *prometheus.Registry
}

func NewProject(
	cfg domain.ProjectConfig,
	coll *collector.Collector,
	orchestrator *uibuild.Orchestrator,
	logging Logging,
	metrics domain.Metrics,
	registry *prometheus.Registry,
) *Project {
	return &Project{
		Config:       cfg,
		Collector:    coll,
		Orchestrator: orchestrator,
		Logger:       logging.Logger,
		Logs:         logging.Broadcaster,
		Metrics:      metrics,
		Registry:     registry,
	}
}

// BuildContext describes a sub-build session over the live registry.
func (p *Project) BuildContext(dev bool, plugins []api.Plugin) uibuild.BuildContext {
	return uibuild.BuildContext{
		Root:             p.Config.Root,
		Config:           p.Config.Build,
		Plugins:          plugins,
		Registry:         p.Collector.Current,
		DefaultFramework: p.Config.Framework,
		Dev:              dev,
	}
}
