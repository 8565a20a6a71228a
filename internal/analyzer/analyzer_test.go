package analyzer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/mcpapps/mcpapps/internal/domain"
)

const todoSource = `package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/mcpapps/mcpapps/pkg/mcpapps"
)

type TodoFilter struct {
	Filter string ` + "`json:\"filter\"`" + `
}

var GetTodos = mcpapps.Tool{
	Name: "get_todos",
	Config: mcpapps.ToolConfig{
		Description:  "List todos",
		InputSchema:  mcpapps.SchemaFor[TodoFilter](),
		OutputSchema: mcpapps.SchemaFor[TodoList](),
	},
	Handler: mcpapps.Handle(getTodos),
	App:     &mcpapps.App{Framework: mcpapps.Preact},
}

var Plain = &mcpapps.Tool{
	Name:    ` + "`plain`" + `,
	Handler: mcpapps.HandleRaw(func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) { return nil, nil }),
	App:     nil,
}
`

func TestAnalyze_RecoversLiteralNames(t *testing.T) {
	report, err := New().Analyze("tools/get_todos.go", []byte(todoSource))
	require.NoError(t, err)
	require.Equal(t, "tools", report.Package)
	require.Len(t, report.Declarations, 2)

	first := report.Declarations[0]
	require.Equal(t, domain.KindTool, first.Kind)
	require.Equal(t, "GetTodos", first.Symbol)
	require.True(t, first.NameKnown)
	require.Equal(t, "get_todos", first.Name)
	require.True(t, first.HasUI)
	require.True(t, first.HasHandler)
	require.Equal(t, domain.FrameworkPreact, first.Framework)
	want := domain.SchemaSources{
		Input:  "mcpapps.SchemaFor[TodoFilter]()",
		Output: "mcpapps.SchemaFor[TodoList]()",
	}
	if diff := cmp.Diff(want, first.Schemas); diff != "" {
		t.Fatalf("schema slices mismatch (-want +got):\n%s", diff)
	}

	second := report.Declarations[1]
	require.Equal(t, "plain", second.Name)
	require.False(t, second.HasUI)
}

func TestAnalyze_AliasedImportAndResourcesPrompts(t *testing.T) {
	src := `package content

import (
	apps "github.com/mcpapps/mcpapps/pkg/mcpapps"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	Readme = apps.Resource{
		Name: "readme",
		URI:  "file:///readme.md",
	}
	Greet = apps.Prompt{
		Name: "greet",
		Config: apps.PromptConfig{
			Arguments: []*mcp.PromptArgument{{Name: "who", Required: true}},
		},
	}
)
`
	report, err := New().Analyze("content.go", []byte(src))
	require.NoError(t, err)
	require.True(t, report.Has(domain.KindResource))
	require.True(t, report.Has(domain.KindPrompt))
	require.False(t, report.Has(domain.KindTool))

	res := report.ByKind(domain.KindResource)[0]
	require.Equal(t, "readme", res.Name)
	require.Equal(t, "file:///readme.md", res.URI)

	prompt := report.ByKind(domain.KindPrompt)[0]
	require.Equal(t, `[]*mcp.PromptArgument{{Name: "who", Required: true}}`, prompt.Schemas.Arguments)
}

func TestAnalyze_ComputedAndAliasedNamesStayUnknown(t *testing.T) {
	src := `package tools

import (
	"github.com/mcpapps/mcpapps/pkg/mcpapps"
	"example.com/proj/shared"
)

const prefix = "x_"

var Computed = mcpapps.Tool{Name: prefix + "tool"}

var Reexported mcpapps.Tool = shared.Tool

var NotEntity = shared.Tool
`
	report, err := New().Analyze("tools/x.go", []byte(src))
	require.NoError(t, err)
	require.Len(t, report.Declarations, 2)

	require.Equal(t, "Computed", report.Declarations[0].Symbol)
	require.False(t, report.Declarations[0].NameKnown)
	require.True(t, report.Declarations[0].Literal)

	require.Equal(t, "Reexported", report.Declarations[1].Symbol)
	require.False(t, report.Declarations[1].NameKnown)
	require.False(t, report.Declarations[1].Literal)
}

func TestAnalyze_NoFalsePositivesFromUnrelatedCode(t *testing.T) {
	cases := map[string]string{
		"no runtime import": `package tools

import "example.com/other/mcpapps"

var Tool = mcpapps.Tool{Name: "ignored"}
`,
		"other struct types": `package tools

import "github.com/mcpapps/mcpapps/pkg/mcpapps"

type Tool struct{ Name string }

var Local = Tool{Name: "local"}
var Fw = mcpapps.React

func build() mcpapps.Tool { return mcpapps.Tool{Name: "inside_func"} }
`,
		"plain program": `package main

func main() {}
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			report, err := New().Analyze("x.go", []byte(src))
			require.NoError(t, err)
			require.Empty(t, report.Declarations)
		})
	}
}

func TestAnalyze_UnexportedDeclarationsAreReported(t *testing.T) {
	src := `package tools

import "github.com/mcpapps/mcpapps/pkg/mcpapps"

var hidden = mcpapps.Tool{Name: "hidden"}
`
	report, err := New().Analyze("x.go", []byte(src))
	require.NoError(t, err)
	require.Empty(t, report.Declarations)
	require.Equal(t, []string{"hidden"}, report.Unexported)
}

func TestAnalyze_AppEntryAndStringFramework(t *testing.T) {
	src := `package tools

import "github.com/mcpapps/mcpapps/pkg/mcpapps"

var Chart = mcpapps.Tool{
	Name: "chart",
	App:  &mcpapps.App{Entry: "ui/chart.tsx", Framework: "solid"},
}
`
	report, err := New().Analyze("x.go", []byte(src))
	require.NoError(t, err)
	decl := report.Declarations[0]
	require.True(t, decl.HasUI)
	require.Equal(t, "ui/chart.tsx", decl.UIEntry)
	require.Equal(t, domain.FrameworkSolid, decl.Framework)
}

func TestAnalyze_ParseErrorIsScopedToFile(t *testing.T) {
	_, err := New().Analyze("broken.go", []byte("package tools\nvar X = {"))
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrParse))
}

func TestMayDeclare(t *testing.T) {
	a := New()
	require.True(t, a.MayDeclare([]byte(todoSource)))
	require.False(t, a.MayDeclare([]byte("package x\n\nvar y = 1\n")))

	// Mentions in comments pass the prefilter; parsing drops them.
	commented := []byte("package x\n\n// see github.com/mcpapps/mcpapps/pkg/mcpapps and mcpapps.Tool\n")
	require.True(t, a.MayDeclare(commented))
	report, err := a.Analyze("x.go", commented)
	require.NoError(t, err)
	require.Empty(t, report.Declarations)
}

func TestAnalyze_PointerDeclarations(t *testing.T) {
	src := `package tools

import (
	"example.com/proj/shared"
	"github.com/mcpapps/mcpapps/pkg/mcpapps"
)

var Value = mcpapps.Tool{Name: "value"}

var Addressed = &mcpapps.Tool{Name: "addressed"}

var Typed *mcpapps.Prompt = shared.Greet

var Unset *mcpapps.Tool
`
	report, err := New().Analyze("tools/x.go", []byte(src))
	require.NoError(t, err)

	got := make(map[string]bool)
	for _, decl := range report.Declarations {
		got[decl.Symbol] = decl.Pointer
	}
	require.Equal(t, map[string]bool{"Value": false, "Addressed": true, "Typed": true}, got)
}
