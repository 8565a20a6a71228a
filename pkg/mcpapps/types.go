// Package mcpapps is the runtime imported by projects that declare tools,
// resources and prompts for discovery by the mcpapps CLI.
//
// Declarations are package-level variables holding keyed composite literals:
//
//	var GetTodos = mcpapps.Tool{
//		Name:    "get_todos",
//		Config:  mcpapps.ToolConfig{Description: "List todos"},
//		Handler: mcpapps.Handle(getTodos),
//		App:     &mcpapps.App{Framework: mcpapps.React},
//	}
//
// The CLI reads these literals without compiling the project, so Name, URI,
// App.Entry and App.Framework should be written as literals.
//
// `mcpapps sync` generates RegisterEntities and BuiltHTML, which a main
// package hands to Main:
//
//	func main() {
//		mcpapps.Main(mcpapps.Options{Name: "todo", Register: RegisterEntities, HTML: BuiltHTML})
//	}
package mcpapps

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// Framework selects the UI target an App is compiled for.
type Framework string

const (
	React  Framework = Framework(domain.FrameworkReact)
	Preact Framework = Framework(domain.FrameworkPreact)
	Solid  Framework = Framework(domain.FrameworkSolid)
	Hono   Framework = Framework(domain.FrameworkHono)
	DOM    Framework = Framework(domain.FrameworkDOM)
)

type Tool struct {
	Name    string
	Config  ToolConfig
	Handler ToolHandler
	// App pairs the tool with a UI. A nil App registers a plain tool.
	App *App
}

type ToolConfig struct {
	Title       string
	Description string
	// InputSchema and OutputSchema override the schemas inferred from the handler types.
	InputSchema  *jsonschema.Schema
	OutputSchema *jsonschema.Schema
	Annotations  *mcp.ToolAnnotations
	Meta         mcp.Meta
}

// App describes the UI rendered for a tool result.
type App struct {
	// Entry is the UI source relative to the declaring file. When empty the
	// sibling file with the declaring file's base name and a .tsx/.jsx extension is used.
	Entry     string
	Framework Framework
	Title     string
	// Meta is merged into the _meta of the companion ui:// resource.
	Meta mcp.Meta
}

type Resource struct {
	Name    string
	URI     string
	Config  ResourceConfig
	Handler ResourceHandler
}

type ResourceConfig struct {
	Title       string
	Description string
	MIMEType    string
	Meta        mcp.Meta
}

type ResourceHandler = mcp.ResourceHandler

type Prompt struct {
	Name    string
	Config  PromptConfig
	Handler PromptHandler
}

type PromptConfig struct {
	Title       string
	Description string
	Arguments   []*mcp.PromptArgument
	Meta        mcp.Meta
}

type PromptHandler = mcp.PromptHandler

// SchemaFor infers a JSON schema from T. It panics when T has no schema
// representation, so it is meant for package-level declarations.
func SchemaFor[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic("mcpapps: " + err.Error())
	}
	return schema
}

// ResourceURI returns the ui:// URI under which a tool's UI is published.
func ResourceURI(name string) string {
	return domain.UIResourceURI(name)
}

// ParseResourceURI recovers the tool name from a ui:// URI.
func ParseResourceURI(uri string) (string, error) {
	return domain.ParseUIResourceURI(uri)
}
