//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/wire"
)

func InitializeProject(ctx context.Context, opts ProjectOptions, logging LoggingConfig) (*Project, error) {
	wire.Build(AppSet)
	return nil, nil
}

func InitializeDevRuntime(ctx context.Context, opts ProjectOptions, logging LoggingConfig, serve ServerBuilder, plugins []api.Plugin) (*DevRuntime, func(), error) {
	wire.Build(AppSet, DevSet)
	return nil, nil, nil
}
