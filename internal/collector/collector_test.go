package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
)

const header = `import "github.com/mcpapps/mcpapps/pkg/mcpapps"
`

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func todoProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"go.mod": "module example.com/todo\n\ngo 1.25\n",
		"tools/get_todos.go": "package tools\n\n" + header + `
var GetTodos = mcpapps.Tool{
	Name:    "get_todos",
	Handler: mcpapps.Handle(getTodos),
	App:     &mcpapps.App{},
}
`,
		"tools/get_todos.tsx": "export default function App() { return <div/> }\n",
		"tools/nested/echo.go": "package nested\n\n" + header + `
var Echo = mcpapps.Tool{Name: computeName()}
`,
		"tools/helpers.go":      "package tools\n\nfunc helper() {}\n",
		"tools/helpers_test.go": "package tools\n\n" + header + "\nvar T = mcpapps.Tool{Name: \"test_only\"}\n",
		"tools/testdata/x.go":   "package x\n\n" + header + "\nvar X = mcpapps.Tool{Name: \"fixture\"}\n",
		"tools/broken.go":       "package tools\n\n" + header + "\nvar = mcpapps.Tool{\n",
		"prompts/greet.go": "package prompts\n\n" + header + `
var Greet = mcpapps.Prompt{Name: "greet"}
`,
	})
}

func TestCollect_TodoProject(t *testing.T) {
	root := todoProject(t)

	reg, err := Collect(context.Background(), root, DefaultDirs(), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, reg.Tools, 2)
	require.Empty(t, reg.Resources)
	require.Len(t, reg.Prompts, 1)

	todo := reg.Tools[0]
	require.Equal(t, "get_todos", todo.Name)
	require.True(t, todo.HasUI)
	require.Equal(t, filepath.Join(root, "tools", "get_todos.tsx"), todo.UIEntry)
	require.Equal(t, domain.FrameworkReact, todo.Framework)
	require.Equal(t, "tools/get_todos.go", todo.RelativePath)
	require.Equal(t, filepath.Join(root, "tools", "get_todos.go"), todo.SourcePath)
	require.Equal(t, "example.com/todo/tools", todo.Package)
	require.Equal(t, "GetTodos", todo.Symbol)

	nested := reg.Tools[1]
	require.Equal(t, "nested/echo", nested.Name)
	require.True(t, nested.NameFromPath)
	require.False(t, nested.HasUI)
	require.Equal(t, "example.com/todo/tools/nested", nested.Package)

	require.Equal(t, "greet", reg.Prompts[0].Name)
}

func TestCollect_IsIdempotent(t *testing.T) {
	root := todoProject(t)
	c, err := New(Options{Root: root})
	require.NoError(t, err)

	first, err := c.Collect(context.Background())
	require.NoError(t, err)
	second, err := c.Collect(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("registries differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(second, c.Current()); diff != "" {
		t.Fatalf("current registry is stale (-want +got):\n%s", diff)
	}
}

func TestCollect_ReplacesRegistryWholesale(t *testing.T) {
	root := todoProject(t)
	c, err := New(Options{Root: root})
	require.NoError(t, err)

	_, err = c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Current().Tools, 2)

	require.NoError(t, os.Remove(filepath.Join(root, "tools", "nested", "echo.go")))
	_, err = c.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"get_todos"}, c.Current().Names(domain.KindTool))
}

func TestCollect_MissingDirectoriesYieldZeroEntities(t *testing.T) {
	root := writeProject(t, map[string]string{"go.mod": "module example.com/empty\n"})
	reg, err := Collect(context.Background(), root, Dirs{Tools: "does-not-exist"}, nil)
	require.NoError(t, err)
	require.Zero(t, reg.Len())
	require.NotNil(t, reg.Tools)
}

func TestCollect_ExplicitEntryAndFramework(t *testing.T) {
	root := writeProject(t, map[string]string{
		"go.mod": "module example.com/chart\n",
		"tools/chart.go": "package tools\n\n" + header + `
var Chart = mcpapps.Tool{
	Name: "chart",
	App:  &mcpapps.App{Entry: "ui/chart_view.jsx", Framework: mcpapps.Solid},
}
`,
		"tools/ui/chart_view.jsx": "export default () => <p/>\n",
	})
	c, err := New(Options{Root: root, DefaultFramework: domain.FrameworkPreact})
	require.NoError(t, err)
	reg, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, reg.Tools, 1)
	require.Equal(t, filepath.Join(root, "tools", "ui", "chart_view.jsx"), reg.Tools[0].UIEntry)
	require.Equal(t, domain.FrameworkSolid, reg.Tools[0].Framework)
}

func TestCollect_SkipsGeneratedFiles(t *testing.T) {
	root := writeProject(t, map[string]string{
		"go.mod": "module example.com/gen\n",
		"tools/mcpapps_gen.go": "package tools\n\n" + header + `
var Gen = mcpapps.Tool{Name: "generated"}
`,
	})
	c, err := New(Options{Root: root, SkipFiles: []string{domain.DefaultOutputFile}})
	require.NoError(t, err)
	reg, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, reg.Tools)
}

func TestCollect_DuplicatesAreKeptInOrder(t *testing.T) {
	root := writeProject(t, map[string]string{
		"go.mod": "module example.com/dup\n",
		"tools/a.go": "package tools\n\n" + header + "\nvar A = mcpapps.Tool{Name: \"same\"}\n",
		"tools/b.go": "package tools\n\n" + header + "\nvar B = mcpapps.Tool{Name: \"same\"}\n",
	})
	reg, err := Collect(context.Background(), root, DefaultDirs(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"same", "same"}, reg.Names(domain.KindTool))
	require.Len(t, reg.Duplicates(), 1)
}

func TestPathName(t *testing.T) {
	require.Equal(t, "nested/deep/tool", PathName("/p/tools", "/p/tools/nested/deep/tool.go"))
	require.Equal(t, "x", PathName("/p/tools", "/p/tools/x.go"))
}

func TestWatch_RecollectsOnChange(t *testing.T) {
	root := todoProject(t)
	c, err := New(Options{Root: root})
	require.NoError(t, err)
	_, err = c.Collect(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := c.Subscribe(ctx)
	c.Watch(ctx, 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "tools", "added.go")
	require.NoError(t, os.WriteFile(path, []byte("package tools\n\n"+header+"\nvar Added = mcpapps.Tool{Name: \"added\"}\n"), 0o644))

	select {
	case update := <-updates:
		require.True(t, update.GoChanged)
		require.Contains(t, update.Registry.Names(domain.KindTool), "added")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch update")
	}
}

func TestBroadcast_MergesUnreadUpdates(t *testing.T) {
	c, err := New(Options{Root: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := c.Subscribe(ctx)

	uiOnly := domain.Registry{Tools: []domain.Entity{{Name: "first", Kind: domain.KindTool}}}
	goChange := domain.Registry{Tools: []domain.Entity{{Name: "second", Kind: domain.KindTool}}}
	c.broadcast(Update{Registry: uiOnly, Changed: []string{"tools/a.tsx"}})
	c.broadcast(Update{Registry: goChange, Changed: []string{"tools/a.go", "tools/a.tsx"}, GoChanged: true})

	select {
	case update := <-updates:
		require.True(t, update.GoChanged)
		require.Equal(t, []string{"tools/a.go", "tools/a.tsx"}, update.Changed)
		require.Equal(t, []string{"second"}, update.Registry.Names(domain.KindTool))
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	select {
	case update := <-updates:
		t.Fatalf("unexpected second update: %+v", update)
	default:
	}
}
