package uibuild

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// Request describes one isolated sub-build.
type Request struct {
	Entity  domain.Entity
	Target  Target
	Root    string
	Config  domain.BuildConfig
	Plugins []api.Plugin
	// Dev enables the JSX dev runtime.
	Dev bool
}

// Output is the bundled result of a sub-build.
type Output struct {
	JS  []byte
	CSS []byte
}

// Builder compiles one UI entry into a bundle.
type Builder interface {
	Build(ctx context.Context, req Request) (Output, error)
}

var assetLoaders = map[string]api.Loader{
	".png":   api.LoaderDataURL,
	".jpg":   api.LoaderDataURL,
	".jpeg":  api.LoaderDataURL,
	".gif":   api.LoaderDataURL,
	".webp":  api.LoaderDataURL,
	".avif":  api.LoaderDataURL,
	".svg":   api.LoaderDataURL,
	".ico":   api.LoaderDataURL,
	".woff":  api.LoaderDataURL,
	".woff2": api.LoaderDataURL,
	".ttf":   api.LoaderDataURL,
	".otf":   api.LoaderDataURL,
}

// EsbuildBuilder runs sub-builds in-process with esbuild.
type EsbuildBuilder struct{}

func NewEsbuildBuilder() *EsbuildBuilder {
	return &EsbuildBuilder{}
}

func (b *EsbuildBuilder) Build(ctx context.Context, req Request) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	opts := buildOptions(req)
	result := api.Build(opts)
	if len(result.Errors) > 0 {
		messages := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return Output{}, fmt.Errorf("%w: %s: %s", domain.ErrBuild, req.Entity.Name, strings.TrimSpace(strings.Join(messages, "\n")))
	}

	var out Output
	for _, file := range result.OutputFiles {
		switch filepath.Ext(file.Path) {
		case ".js":
			if out.JS != nil {
				return Output{}, fmt.Errorf("%w: %s produced more than one script", domain.ErrBuild, req.Entity.Name)
			}
			out.JS = file.Contents
		case ".css":
			out.CSS = append(out.CSS, file.Contents...)
		}
	}
	if out.JS == nil {
		return Output{}, fmt.Errorf("%w: %s", domain.ErrNoHTMLAsset, req.Entity.Name)
	}
	return out, nil
}

func buildOptions(req Request) api.BuildOptions {
	plugins := append(FilterPlugins(req.Plugins, req.Config.PluginAllowlist), runtimePlugin(req.Root))

	opts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   entrySource(req.Target, req.Entity),
			ResolveDir: filepath.Dir(req.Entity.UIEntry),
			Sourcefile: req.Entity.Name + ".entry.js",
			Loader:     api.LoaderJS,
		},
		AbsWorkingDir:   req.Root,
		Bundle:          true,
		Write:           false,
		Outdir:          filepath.Join(req.Root, domain.DefaultCacheDir, "ui"),
		Format:          api.FormatIIFE,
		Platform:        api.PlatformBrowser,
		Target:          esTarget(req.Config.Target),
		JSX:             req.Target.JSX,
		JSXImportSource: req.Target.JSXImportSource,
		JSXDev:          req.Dev,
		Loader:          assetLoaders,
		Plugins:         plugins,
		LogLevel:        api.LogLevelSilent,
		Define: map[string]string{
			"process.env.NODE_ENV": strconv.Quote(nodeEnv(req.Dev)),
		},
	}
	if req.Config.Minify {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	}
	if req.Config.Sourcemap {
		opts.Sourcemap = api.SourceMapInline
	}
	return opts
}

// entrySource is the synthetic entry module: the framework adapter mounts
// the UI module's default export, or its App export, into #root.
func entrySource(target Target, entity domain.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "import { mount } from %s;\n", strconv.Quote(target.Adapter))
	fmt.Fprintf(&b, "import * as ui from %s;\n", strconv.Quote(filepath.ToSlash(entity.UIEntry)))
	b.WriteString("mount(ui.default ?? ui.App, document.getElementById(\"root\"));\n")
	return b.String()
}

func nodeEnv(dev bool) string {
	if dev {
		return "development"
	}
	return "production"
}
