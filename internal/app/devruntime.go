package app

import (
	"context"
	"os"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/collector"
	"github.com/mcpapps/mcpapps/internal/devserver"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

// Environment handed from `mcpapps dev` to the user's server.
const (
	EnvDevRoot    = domain.DefaultDevEnvVar
	EnvConfigPath = "MCPAPPS_CONFIG"
)

// HTMLFunc yields the ui document of a tool.
type HTMLFunc func(ctx context.Context, name string) (string, error)

// ServerBuilder creates a fresh protocol server whose ui documents come
// from html.
type ServerBuilder func(ctx context.Context, html HTMLFunc) (*mcp.Server, error)

// DevOptionsFromEnv reports whether the process was started by the dev
// supervisor and, if so, which project it serves.
func DevOptionsFromEnv() (ProjectOptions, bool) {
	root, ok := os.LookupEnv(EnvDevRoot)
	root = strings.TrimSpace(root)
	if !ok || root == "" || root == "0" || strings.EqualFold(root, "false") {
		return ProjectOptions{}, false
	}
	if root == "1" || strings.EqualFold(root, "true") {
		root = "."
	}
	return ProjectOptions{Root: root, ConfigPath: strings.TrimSpace(os.Getenv(EnvConfigPath))}, true
}

// DevRuntime runs the preview server inside the user's program: it owns
// the build session and follows ui source changes.
type DevRuntime struct {
	project *Project
	server  *devserver.Server
	plugins []api.Plugin
}

func NewDevRuntime(project *Project, server *devserver.Server, plugins []api.Plugin) *DevRuntime {
	return &DevRuntime{project: project, server: server, plugins: plugins}
}

// Run serves until ctx ends.
func (r *DevRuntime) Run(ctx context.Context) error {
	p := r.project
	reg, err := p.Collector.Collect(ctx)
	if err != nil {
		return err
	}
	p.Orchestrator.Begin(p.BuildContext(true, r.plugins))
	defer p.Orchestrator.End()

	if p.Config.Dev.Watch {
		updates := p.Collector.Subscribe(ctx)
		p.Collector.Watch(ctx, domain.DefaultWatchDebounce)
		go r.follow(updates)
	}
	p.Logger.Info("dev runtime ready",
		zap.Int("tools", len(reg.Tools)),
		zap.Int("uiTools", len(reg.UITools())),
		zap.String("preview", "http://"+p.Config.Dev.ListenAddress+"/"),
	)
	return r.server.Serve(ctx, p.Config.Dev.ListenAddress)
}

// follow drops cached documents whenever sources change. Go changes are
// picked up by the supervisor restarting this process.
func (r *DevRuntime) follow(updates <-chan collector.Update) {
	for update := range updates {
		r.project.Orchestrator.Reset()
		r.project.Logger.Debug("sources changed, build cache reset",
			telemetry.EventField(telemetry.EventCollect),
			zap.Strings("changed", update.Changed),
		)
	}
}

// RunDev wires a dev runtime for the project named by opts and runs it.
func RunDev(ctx context.Context, opts ProjectOptions, logging LoggingConfig, serve ServerBuilder, plugins []api.Plugin) error {
	runtime, cleanup, err := InitializeDevRuntime(ctx, opts, logging, serve, plugins)
	if err != nil {
		return err
	}
	defer cleanup()
	return runtime.Run(ctx)
}

// BuildOnDemand returns documents built from the project sources the first
// time each is requested. It serves programs run without `mcpapps build`.
func BuildOnDemand(ctx context.Context, opts ProjectOptions, logging LoggingConfig, plugins []api.Plugin) (HTMLFunc, func(), error) {
	project, err := InitializeProject(ctx, opts, logging)
	if err != nil {
		return nil, nil, err
	}
	if _, err := project.Collector.Collect(ctx); err != nil {
		return nil, nil, err
	}
	project.Orchestrator.Begin(project.BuildContext(false, plugins))
	return project.Orchestrator.GetBuiltHTML, project.Orchestrator.End, nil
}
