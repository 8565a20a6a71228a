package uibuild

import (
	"embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// VirtualPrefix marks imports served from the embedded client runtime.
const VirtualPrefix = "mcpapps:"

const virtualNamespace = "mcpapps"

// DefaultPluginAllowlist holds the name prefixes of outer plugins that are
// kept in sub-builds.
var DefaultPluginAllowlist = []string{"react", "preact", "solid", "hono", "vue", "svelte"}

//go:embed runtime/*.js
var runtimeFS embed.FS

var virtualModules = map[string]string{
	"bridge":              "runtime/bridge.js",
	"runtime/react":       "runtime/react.js",
	"runtime/preact":      "runtime/preact.js",
	"runtime/solid":       "runtime/solid.js",
	"runtime/hono":        "runtime/hono.js",
	"runtime/dom":         "runtime/dom.js",
	"dom/jsx-runtime":     "runtime/jsx-runtime.js",
	"dom/jsx-dev-runtime": "runtime/jsx-runtime.js",
}

// runtimePlugin resolves mcpapps:* imports to the embedded client runtime.
// Framework packages imported by the runtime resolve from resolveDir.
func runtimePlugin(resolveDir string) api.Plugin {
	filter := "^" + regexp.QuoteMeta(VirtualPrefix)
	return api.Plugin{
		Name: "mcpapps:runtime",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				path := strings.TrimPrefix(args.Path, VirtualPrefix)
				if _, ok := virtualModules[path]; !ok {
					return api.OnResolveResult{}, fmt.Errorf("unknown virtual module %q", args.Path)
				}
				return api.OnResolveResult{Path: path, Namespace: virtualNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: virtualNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				data, err := runtimeFS.ReadFile(virtualModules[args.Path])
				if err != nil {
					return api.OnLoadResult{}, err
				}
				contents := string(data)
				return api.OnLoadResult{
					Contents:   &contents,
					ResolveDir: resolveDir,
					Loader:     api.LoaderJS,
				}, nil
			})
		},
	}
}

// FilterPlugins drops outer plugins unless their name starts with an
// allow-listed framework prefix.
func FilterPlugins(plugins []api.Plugin, extra []string) []api.Plugin {
	prefixes := append(append([]string(nil), DefaultPluginAllowlist...), extra...)
	var kept []api.Plugin
	for _, plugin := range plugins {
		name := strings.ToLower(plugin.Name)
		if strings.HasPrefix(name, VirtualPrefix) {
			continue
		}
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(name, strings.ToLower(prefix)) {
				kept = append(kept, plugin)
				break
			}
		}
	}
	return kept
}
