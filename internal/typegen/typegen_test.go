package typegen

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcpapps/mcpapps/internal/domain"
)

const todoSource = `package tools

import (
	"time"

	"example.com/todo/mcpapps"
)

type Filter string

type TodoInput struct {
	Filter Filter ` + "`json:\"filter,omitempty\"`" + `
	Limit  *int
	secret string
}

type Todo struct {
	ID      string    ` + "`json:\"id\"`" + `
	Title   string    ` + "`json:\"title\"`" + `
	Done    bool      ` + "`json:\"done\"`" + `
	Due     time.Time ` + "`json:\"due,omitzero\"`" + `
	Labels  map[string]string ` + "`json:\"labels,omitempty\"`" + `
	Ignored string    ` + "`json:\"-\"`" + `
}

type Page struct {
	Total int ` + "`json:\"total\"`" + `
}

type TodoOutput struct {
	Page
	Todos []Todo ` + "`json:\"todos\"`" + `
	Raw   []byte ` + "`json:\"raw-data,omitempty\"`" + `
}

var GetTodos = mcpapps.Tool{
	InputSchema:  mcpapps.SchemaFor[TodoInput](),
	OutputSchema: mcpapps.SchemaFor[TodoOutput](),
}
`

func writePackage(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestGenerate_RendersToolTypes(t *testing.T) {
	dir := writePackage(t, map[string]string{"get_todos.go": todoSource})
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{
		Name:       "get_todos",
		Kind:       domain.KindTool,
		SourcePath: filepath.Join(dir, "get_todos.go"),
		Schemas: domain.SchemaSources{
			Input:  "mcpapps.SchemaFor[TodoInput]()",
			Output: "mcpapps.SchemaFor[TodoOutput]()",
		},
	})

	out, err := Generate(reg, Options{})
	require.NoError(t, err)
	src := string(out)

	require.True(t, strings.HasPrefix(src, header))
	require.Contains(t, src, "export type Filter = string;\n")
	require.Contains(t, src, "export interface TodoInput {\n  filter?: Filter;\n  Limit?: number;\n}\n")
	require.NotContains(t, src, "secret")
	require.Contains(t, src, "  due?: string;\n")
	require.Contains(t, src, "  labels?: Record<string, string>;\n")
	require.NotContains(t, src, "Ignored")
	require.Contains(t, src, "export interface TodoOutput {\n  total: number;\n  todos: Todo[];\n  \"raw-data\"?: string;\n}\n")
	require.Contains(t, src, `  "get_todos": { input: TodoInput; output: TodoOutput };`)

	// Declarations follow first reference.
	require.Less(t, strings.Index(src, "interface TodoInput"), strings.Index(src, "type Filter"))
	require.Less(t, strings.Index(src, "interface TodoOutput"), strings.Index(src, "interface Todo {"))
}

func TestGenerate_SkipsUntypedSchemas(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{
		Name:       "raw",
		Kind:       domain.KindTool,
		SourcePath: filepath.Join(t.TempDir(), "raw.go"),
		Schemas:    domain.SchemaSources{Input: `&jsonschema.Schema{Type: "object"}`},
	})
	reg.Add(domain.Entity{Name: "plain", Kind: domain.KindTool})

	out, err := Generate(reg, Options{})
	require.NoError(t, err)
	require.Equal(t, header+"\nexport interface ToolTypes {\n}\n", string(out))
}

func TestGenerate_RejectsMalformedSchemaSource(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{Name: "bad", Kind: domain.KindTool, RelativePath: "tools/bad.go", Schemas: domain.SchemaSources{Input: "SchemaFor[("}})
	_, err := Generate(reg, Options{})
	require.ErrorContains(t, err, "tools/bad.go")
}

func TestGenerate_DisambiguatesSameNameAcrossPackages(t *testing.T) {
	root := t.TempDir()
	for _, pkg := range []string{"alpha", "beta"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, pkg), 0o755))
		src := "package " + pkg + "\n\ntype Input struct {\n\tName string `json:\"name\"`\n}\n"
		require.NoError(t, os.WriteFile(filepath.Join(root, pkg, "tool.go"), []byte(src), 0o644))
	}
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{Name: "a", Kind: domain.KindTool, PackageDir: "alpha", Schemas: domain.SchemaSources{Input: "SchemaFor[Input]()"}})
	reg.Add(domain.Entity{Name: "b", Kind: domain.KindTool, PackageDir: "beta", Schemas: domain.SchemaSources{Input: "mcpapps.SchemaFor[*Input]()"}})

	first, err := Generate(reg, Options{Root: root})
	require.NoError(t, err)
	src := string(first)
	require.Contains(t, src, "export interface Input {")
	require.Contains(t, src, "export interface beta_Input {")
	require.Contains(t, src, `"b": { input: beta_Input; output: unknown };`)

	second, err := Generate(reg, Options{Root: root})
	require.NoError(t, err)
	require.Equal(t, src, string(second))
}

func TestManifest(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{
		Name:         "get_todos",
		Kind:         domain.KindTool,
		SourcePath:   "/work/todo/tools/get_todos.go",
		RelativePath: "tools/get_todos.go",
		HasUI:        true,
		UIEntry:      "/work/todo/tools/get_todos.tsx",
	})

	out, err := Manifest(reg, "/work/todo")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(out), "}\n"))

	var decoded domain.Registry
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, []string{"get_todos"}, decoded.Names(domain.KindTool))
	require.Empty(t, decoded.Prompts)
	require.Empty(t, decoded.Tools[0].SourcePath)
	require.Equal(t, "tools/get_todos.tsx", decoded.Tools[0].UIEntry)
	require.Equal(t, "/work/todo/tools/get_todos.go", reg.Tools[0].SourcePath)
}
