package codegen

import (
	"errors"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcpapps/mcpapps/internal/domain"
)

func todoRegistry() domain.Registry {
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{
		Name:         "get_todos",
		Kind:         domain.KindTool,
		RelativePath: "tools/get_todos.go",
		Package:      "example.com/todo/tools",
		PackageDir:   "tools",
		Symbol:       "GetTodos",
		HasUI:        true,
		UIEntry:      "/p/tools/get_todos.tsx",
	})
	reg.Add(domain.Entity{
		Name:         "nested/echo",
		Kind:         domain.KindTool,
		RelativePath: "tools/nested/echo.go",
		Package:      "example.com/todo/tools/nested",
		PackageDir:   "tools/nested",
		Symbol:       "Echo",
	})
	reg.Add(domain.Entity{
		Name:         "readme",
		Kind:         domain.KindResource,
		RelativePath: "resources/readme.go",
		Package:      "example.com/todo/resources",
		PackageDir:   "resources",
		Symbol:       "Readme",
	})
	reg.Add(domain.Entity{
		Name:         "greet",
		Kind:         domain.KindPrompt,
		RelativePath: "prompts/greet.go",
		Package:      "example.com/todo/prompts",
		PackageDir:   "prompts",
		Symbol:       "Greet",
	})
	return reg
}

func TestGenerate_TodoProject(t *testing.T) {
	out, err := Generate(todoRegistry(), Options{Package: "main"})
	require.NoError(t, err)
	src := string(out)

	require.True(t, strings.HasPrefix(src, Header))
	require.Contains(t, src, `tools "example.com/todo/tools"`)
	require.Contains(t, src, `toolsNested "example.com/todo/tools/nested"`)
	require.Contains(t, src, `r.AppTool("get_todos", tools.GetTodos)`)
	require.Contains(t, src, `r.Tool("nested/echo", toolsNested.Echo)`)
	require.Contains(t, src, `r.Resource("readme", resources.Readme)`)
	require.Contains(t, src, `r.Prompt("greet", prompts.Greet)`)
	require.Contains(t, src, "var BuiltHTML mcpapps.HTMLSource\n")

	order := []string{`"get_todos"`, `"nested/echo"`, `"readme"`, `"greet"`}
	last := -1
	for _, needle := range order {
		idx := strings.Index(src, needle)
		require.Greater(t, idx, last, needle)
		last = idx
	}

	_, err = parser.ParseFile(token.NewFileSet(), "gen.go", out, parser.AllErrors)
	require.NoError(t, err)
}

func TestGenerate_IsDeterministic(t *testing.T) {
	first, err := Generate(todoRegistry(), Options{})
	require.NoError(t, err)
	second, err := Generate(todoRegistry(), Options{})
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestGenerate_AliasCollisions(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{Name: "a", Kind: domain.KindTool, Package: "example.com/p/tools/nested", PackageDir: "tools/nested", Symbol: "A"})
	reg.Add(domain.Entity{Name: "b", Kind: domain.KindTool, Package: "example.com/p/tools_nested", PackageDir: "tools_nested", Symbol: "B"})
	reg.Add(domain.Entity{Name: "c", Kind: domain.KindTool, Package: "example.com/p/tools-nested", PackageDir: "tools-nested", Symbol: "C"})
	reg.Add(domain.Entity{Name: "d", Kind: domain.KindTool, Package: "example.com/p/mcp", PackageDir: "mcp", Symbol: "D"})

	out, err := Generate(reg, Options{})
	require.NoError(t, err)
	src := string(out)
	require.Contains(t, src, `toolsNested "example.com/p/tools/nested"`)
	require.Contains(t, src, `toolsNested2 "example.com/p/tools_nested"`)
	require.Contains(t, src, `toolsNested3 "example.com/p/tools-nested"`)
	require.Contains(t, src, `mcp2 "example.com/p/mcp"`)
	require.Contains(t, src, `r.Tool("d", mcp2.D)`)
}

func TestGenerate_SelfPackageIsUnqualified(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{Name: "local", Kind: domain.KindTool, Package: "example.com/p", Symbol: "Local"})
	out, err := Generate(reg, Options{SelfImportPath: "example.com/p"})
	require.NoError(t, err)
	require.Contains(t, string(out), `r.Tool("local", Local)`)
	require.NotContains(t, string(out), `"example.com/p"`)
}

func TestGenerate_EmbedsPrebuiltUI(t *testing.T) {
	out, err := Generate(todoRegistry(), Options{EmbedDir: domain.DefaultUIDir})
	require.NoError(t, err)
	src := string(out)
	require.Contains(t, src, "\"embed\"")
	require.Contains(t, src, "//go:embed mcpapps_ui\nvar builtUI embed.FS")
	require.Contains(t, src, `mcpapps.EmbeddedHTML(builtUI, "mcpapps_ui")`)
}

func TestGenerate_FailsWholeOnInvalidRegistry(t *testing.T) {
	cases := map[string]func(*domain.Registry){
		"duplicate name": func(reg *domain.Registry) {
			dup := reg.Tools[1]
			dup.Name = "get_todos"
			reg.Tools[1] = dup
		},
		"unresolved package": func(reg *domain.Registry) {
			reg.Prompts[0].Package = ""
		},
		"app without ui source": func(reg *domain.Registry) {
			reg.Tools[0].UIEntry = ""
		},
		"bad ui name": func(reg *domain.Registry) {
			reg.Tools[0].Name = "a/../b"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			reg := todoRegistry()
			mutate(&reg)
			out, err := Generate(reg, Options{})
			require.Nil(t, out)
			require.True(t, errors.Is(err, domain.ErrGenerate), err)
		})
	}
}

func TestIdentifier(t *testing.T) {
	require.Equal(t, "toolsNestedDeep", Identifier("tools/nested/deep"))
	require.Equal(t, "getTodos", Identifier("get_todos"))
	require.Equal(t, "p2fa", Identifier("2fa"))
	require.Equal(t, "", Identifier("//"))
}

func TestDetectPackageAndWriteIfChanged(t *testing.T) {
	dir := t.TempDir()
	pkg, err := DetectPackage(dir, domain.DefaultOutputFile)
	require.NoError(t, err)
	require.Equal(t, "main", pkg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.go"), []byte("package server\n"), 0o644))
	pkg, err = DetectPackage(dir, domain.DefaultOutputFile)
	require.NoError(t, err)
	require.Equal(t, "server", pkg)

	path := filepath.Join(dir, domain.DefaultOutputFile)
	written, err := WriteIfChanged(path, []byte("package server\n"))
	require.NoError(t, err)
	require.True(t, written)
	written, err = WriteIfChanged(path, []byte("package server\n"))
	require.NoError(t, err)
	require.False(t, written)
}

func TestGenerate_DereferencesPointerDeclarations(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Add(domain.Entity{
		Name:         "get_todos",
		Kind:         domain.KindTool,
		RelativePath: "tools/get_todos.go",
		Package:      "example.com/todo/tools",
		PackageDir:   "tools",
		Symbol:       "GetTodos",
		Pointer:      true,
		HasUI:        true,
		UIEntry:      "/p/tools/get_todos.tsx",
	})
	reg.Add(domain.Entity{
		Name:         "readme",
		Kind:         domain.KindResource,
		RelativePath: "readme.go",
		Package:      "example.com/todo",
		Symbol:       "Readme",
		Pointer:      true,
	})
	reg.Add(domain.Entity{
		Name:         "greet",
		Kind:         domain.KindPrompt,
		RelativePath: "prompts/greet.go",
		Package:      "example.com/todo/prompts",
		PackageDir:   "prompts",
		Symbol:       "Greet",
	})

	out, err := Generate(reg, Options{Package: "main", SelfImportPath: "example.com/todo"})
	require.NoError(t, err)
	src := string(out)
	require.Contains(t, src, `r.AppTool("get_todos", *tools.GetTodos)`)
	require.Contains(t, src, `r.Resource("readme", *Readme)`)
	require.Contains(t, src, `r.Prompt("greet", prompts.Greet)`)
}
