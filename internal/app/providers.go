package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/collector"
	"github.com/mcpapps/mcpapps/internal/devserver"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/config"
	"github.com/mcpapps/mcpapps/internal/infra/settings"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
	"github.com/mcpapps/mcpapps/internal/uibuild"
)

// ProjectOptions locates a project and its configuration file.
type ProjectOptions struct {
	Root string
	// ConfigPath overrides <root>/mcpapps.yaml.
	ConfigPath string
}

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewProjectConfig(ctx context.Context, opts ProjectOptions, logger *zap.Logger) (domain.ProjectConfig, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return domain.ProjectConfig{}, fmt.Errorf("resolve root: %w", err)
	}
	loader := config.NewLoader(logger)
	if opts.ConfigPath == "" {
		return loader.Load(ctx, abs)
	}
	path := opts.ConfigPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(abs, path)
	}
	return loader.LoadFile(ctx, abs, path)
}

func NewCollector(cfg domain.ProjectConfig, logger *zap.Logger, metrics domain.Metrics) (*collector.Collector, error) {
	return collector.New(collector.Options{
		Root: cfg.Root,
		Dirs: collector.Dirs{
			Tools:     cfg.ToolsDir,
			Resources: cfg.ResourcesDir,
			Prompts:   cfg.PromptsDir,
		},
		DefaultFramework: cfg.Framework,
		SkipFiles:        []string{cfg.Output.File},
		Logger:           logger,
		Metrics:          metrics,
	})
}

func NewBuilder() uibuild.Builder {
	return uibuild.NewEsbuildBuilder()
}

func NewOrchestrator(builder uibuild.Builder, logger *zap.Logger, metrics domain.Metrics) *uibuild.Orchestrator {
	return uibuild.New(uibuild.Options{
		Builder: builder,
		Logger:  logger,
		Metrics: metrics,
	})
}

// NewSettingsStore opens the preview settings database. The cleanup closes it.
func NewSettingsStore(cfg domain.ProjectConfig, logger *zap.Logger) (*settings.Store, func(), error) {
	path := cfg.Dev.SettingsPath
	if path == "" {
		path = domain.DefaultSettingsPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Root, path)
	}
	store, err := settings.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close settings store failed", zap.Error(err))
		}
	}, nil
}

func NewDevServer(
	project *Project,
	store *settings.Store,
	registry *prometheus.Registry,
	serve ServerBuilder,
) *devserver.Server {
	orchestrator := project.Orchestrator
	return devserver.New(devserver.Options{
		Config:       project.Config,
		Registry:     project.Collector,
		Orchestrator: orchestrator,
		NewServer: func(ctx context.Context) (*mcp.Server, error) {
			return serve(ctx, orchestrator.GetBuiltHTML)
		},
		Settings: store,
		Logs:     project.Logs,
		Gatherer: registry,
		Metrics:  project.Metrics,
		Logger:   project.Logger,
	})
}
