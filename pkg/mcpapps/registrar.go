package mcpapps

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// Registrar adds declared entities to a server. Problems are collected
// rather than returned per call; Err reports them all.
type Registrar struct {
	server *mcp.Server
	html   HTMLSource
	errs   []error
}

func NewRegistrar(server *mcp.Server, html HTMLSource) *Registrar {
	return &Registrar{server: server, html: html}
}

// Tool registers a plain tool under name.
func (r *Registrar) Tool(name string, decl Tool) {
	tool, ok := r.tool(name, decl)
	if !ok {
		return
	}
	decl.Handler.install(r.server, tool)
}

// AppTool registers a tool together with its ui:// document resource. The
// tool's _meta points at the resource.
func (r *Registrar) AppTool(name string, decl Tool) {
	tool, ok := r.tool(name, decl)
	if !ok {
		return
	}
	uri := ResourceURI(name)
	if tool.Meta == nil {
		tool.Meta = mcp.Meta{}
	}
	ui, _ := tool.Meta[domain.UIMetaKey].(map[string]any)
	ui = maps.Clone(ui)
	if ui == nil {
		ui = map[string]any{}
	}
	ui[domain.UIMetaResourceURI] = uri
	tool.Meta[domain.UIMetaKey] = ui
	decl.Handler.install(r.server, tool)

	app := decl.App
	if app == nil {
		app = &App{}
	}
	title := app.Title
	if title == "" {
		title = tool.Title
	}
	r.server.AddResource(&mcp.Resource{
		Name:     name,
		Title:    title,
		URI:      uri,
		MIMEType: domain.UIResourceMIMEType,
		Meta:     maps.Clone(app.Meta),
	}, r.appDocument(name, uri, app.Meta))
}

func (r *Registrar) appDocument(name, uri string, meta mcp.Meta) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if r.html == nil {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		doc, err := r.html.HTML(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("build ui for %q: %w", name, err)
		}
		if doc == "" {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: domain.UIResourceMIMEType,
			Text:     doc,
			Meta:     maps.Clone(meta),
		}}}, nil
	}
}

func (r *Registrar) tool(name string, decl Tool) (*mcp.Tool, bool) {
	if name == "" {
		r.fail(domain.KindTool, name, "empty name")
		return nil, false
	}
	if decl.Handler == nil {
		r.fail(domain.KindTool, name, "missing handler")
		return nil, false
	}
	cfg := decl.Config
	tool := &mcp.Tool{
		Name:        name,
		Title:       cfg.Title,
		Description: cfg.Description,
		Annotations: cfg.Annotations,
		Meta:        maps.Clone(cfg.Meta),
	}
	if cfg.InputSchema != nil {
		tool.InputSchema = cfg.InputSchema
	}
	if cfg.OutputSchema != nil {
		tool.OutputSchema = cfg.OutputSchema
	}
	return tool, true
}

// Resource registers a resource at its declared URI.
func (r *Registrar) Resource(name string, decl Resource) {
	if decl.Handler == nil {
		r.fail(domain.KindResource, name, "missing handler")
		return
	}
	parsed, err := url.Parse(decl.URI)
	if err != nil || parsed.Scheme == "" {
		r.fail(domain.KindResource, name, fmt.Sprintf("invalid uri %q", decl.URI))
		return
	}
	cfg := decl.Config
	r.server.AddResource(&mcp.Resource{
		Name:        name,
		Title:       cfg.Title,
		Description: cfg.Description,
		MIMEType:    cfg.MIMEType,
		URI:         decl.URI,
		Meta:        maps.Clone(cfg.Meta),
	}, decl.Handler)
}

// Prompt registers a prompt.
func (r *Registrar) Prompt(name string, decl Prompt) {
	if decl.Handler == nil {
		r.fail(domain.KindPrompt, name, "missing handler")
		return
	}
	cfg := decl.Config
	r.server.AddPrompt(&mcp.Prompt{
		Name:        name,
		Title:       cfg.Title,
		Description: cfg.Description,
		Arguments:   cfg.Arguments,
		Meta:        maps.Clone(cfg.Meta),
	}, decl.Handler)
}

// Err joins every registration problem seen so far.
func (r *Registrar) Err() error {
	return errors.Join(r.errs...)
}

func (r *Registrar) fail(kind domain.Kind, name, reason string) {
	r.errs = append(r.errs, domain.E(domain.CodeInvalidArgument, "register "+string(kind), fmt.Sprintf("%s %q: %s", kind, name, reason), nil))
}
