//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
)

var CoreInfraSet = wire.NewSet(
	NewLogging,
	NewLogger,
	NewMetricsRegistry,
	NewMetrics,
)

var ProjectSet = wire.NewSet(
	NewProjectConfig,
	NewCollector,
	NewBuilder,
	NewOrchestrator,
	NewProject,
)

var DevSet = wire.NewSet(
	NewSettingsStore,
	NewDevServer,
	NewDevRuntime,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	ProjectSet,
)
