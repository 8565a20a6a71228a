package uibuild

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// Target is the JSX configuration and runtime adapter of one UI framework.
type Target struct {
	Framework       domain.Framework
	JSX             api.JSX
	JSXImportSource string
	// Adapter is the virtual module exporting mount(Component, element).
	Adapter string
}

var targets = map[domain.Framework]Target{
	domain.FrameworkReact: {
		Framework:       domain.FrameworkReact,
		JSX:             api.JSXAutomatic,
		JSXImportSource: "react",
		Adapter:         VirtualPrefix + "runtime/react",
	},
	domain.FrameworkPreact: {
		Framework:       domain.FrameworkPreact,
		JSX:             api.JSXAutomatic,
		JSXImportSource: "preact",
		Adapter:         VirtualPrefix + "runtime/preact",
	},
	domain.FrameworkSolid: {
		Framework:       domain.FrameworkSolid,
		JSX:             api.JSXAutomatic,
		JSXImportSource: "solid-js/h",
		Adapter:         VirtualPrefix + "runtime/solid",
	},
	domain.FrameworkHono: {
		Framework:       domain.FrameworkHono,
		JSX:             api.JSXAutomatic,
		JSXImportSource: "hono/jsx/dom",
		Adapter:         VirtualPrefix + "runtime/hono",
	},
	domain.FrameworkDOM: {
		Framework:       domain.FrameworkDOM,
		JSX:             api.JSXAutomatic,
		JSXImportSource: VirtualPrefix + "dom",
		Adapter:         VirtualPrefix + "runtime/dom",
	},
}

// TargetFor returns the build target of framework. An empty framework
// selects React.
func TargetFor(framework domain.Framework) (Target, error) {
	if framework == "" {
		framework = domain.DefaultFramework
	}
	target, ok := targets[framework]
	if !ok {
		return Target{}, fmt.Errorf("%w: unsupported framework %q", domain.ErrBuild, framework)
	}
	return target, nil
}

var esTargets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func esTarget(raw string) api.Target {
	if target, ok := esTargets[raw]; ok {
		return target
	}
	return api.ES2020
}
