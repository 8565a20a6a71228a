package preview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// ServerFactory builds a fresh server with every entity registered.
type ServerFactory func(ctx context.Context) (*mcp.Server, error)

// Caller reaches tools through an in-memory client session to a fresh
// server per operation, never through the UI bridge.
type Caller struct {
	newServer ServerFactory
	client    *mcp.Client
}

func NewCaller(newServer ServerFactory) *Caller {
	return &Caller{
		newServer: newServer,
		client:    mcp.NewClient(&mcp.Implementation{Name: "mcpapps-preview", Version: domain.DefaultServerVersion}, nil),
	}
}

func (c *Caller) connect(ctx context.Context) (*mcp.ClientSession, func(), error) {
	server, err := c.newServer(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create server: %w", err)
	}
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect server: %w", err)
	}
	session, err := c.client.Connect(ctx, clientTransport, nil)
	if err != nil {
		_ = serverSession.Close()
		return nil, nil, fmt.Errorf("connect client: %w", err)
	}
	return session, func() {
		_ = session.Close()
		_ = serverSession.Close()
	}, nil
}

// Tool looks up the definition of name as the server advertises it.
func (c *Caller) Tool(ctx context.Context, name string) (*mcp.Tool, error) {
	session, release, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	params := &mcp.ListToolsParams{}
	for {
		result, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, tool := range result.Tools {
			if tool.Name == name {
				return tool, nil
			}
		}
		if result.NextCursor == "" {
			break
		}
		params.Cursor = result.NextCursor
	}
	return nil, domain.E(domain.CodeNotFound, "preview", "tool "+name+" is not registered", domain.ErrEntityNotFound)
}

// CallTool invokes name with arguments.
func (c *Caller) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	session, release, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	var args any
	if len(arguments) > 0 {
		args = arguments
	}
	return session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// ValidateInput checks arguments against the tool's input schema. Blank
// top-level strings count as missing, the way an empty form field does.
func ValidateInput(tool *mcp.Tool, arguments json.RawMessage) (json.RawMessage, error) {
	var instance map[string]any
	if len(arguments) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(arguments, &instance); err != nil {
		return nil, fmt.Errorf("%w: input must be a JSON object: %v", domain.ErrInvalidInput, err)
	}
	for key, value := range instance {
		if s, ok := value.(string); ok && s == "" {
			delete(instance, key)
		}
	}
	pruned, err := json.Marshal(instance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if tool == nil || tool.InputSchema == nil {
		return pruned, nil
	}

	rawSchema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}
	var value any
	if err := json.Unmarshal(pruned, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := resolved.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return pruned, nil
}
