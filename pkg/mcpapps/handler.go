package mcpapps

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolHandler installs a tool on a server. Build one with Handle or HandleRaw.
type ToolHandler interface {
	install(server *mcp.Server, tool *mcp.Tool)
}

type typedHandler[In, Out any] struct {
	fn func(context.Context, In) (Out, error)
}

// Handle adapts a typed function into a tool handler. Input and output
// schemas are inferred from In and Out unless ToolConfig overrides them, and
// the returned value is sent as structured content.
func Handle[In, Out any](fn func(ctx context.Context, in In) (Out, error)) ToolHandler {
	return typedHandler[In, Out]{fn: fn}
}

func (h typedHandler[In, Out]) install(server *mcp.Server, tool *mcp.Tool) {
	mcp.AddTool(server, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		out, err := h.fn(ctx, in)
		return nil, out, err
	})
}

type rawHandler struct {
	fn mcp.ToolHandler
}

// HandleRaw wraps a low-level handler that decodes its own arguments. A
// missing input schema defaults to an open object.
func HandleRaw(fn mcp.ToolHandler) ToolHandler {
	return rawHandler{fn: fn}
}

func (h rawHandler) install(server *mcp.Server, tool *mcp.Tool) {
	if tool.InputSchema == nil {
		tool.InputSchema = map[string]any{"type": "object"}
	}
	server.AddTool(tool, h.fn)
}
