package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mcpapps/mcpapps/internal/domain"
)

const runtimeImport = `import "github.com/mcpapps/mcpapps/pkg/mcpapps"
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
		"go.mod":  "module example.com/todo\n\ngo 1.25\n",
		"main.go": "package main\n\nfunc main() {}\n",
		"tools/get_todos.go": "package tools\n\n" + runtimeImport + `
type TodoInput struct {
	Filter string ` + "`json:\"filter,omitempty\"`" + `
}

var GetTodos = mcpapps.Tool{
	Name:    "get_todos",
	Config:  mcpapps.ToolConfig{InputSchema: mcpapps.SchemaFor[TodoInput]()},
	Handler: mcpapps.Handle(getTodos),
	App:     &mcpapps.App{},
}
`,
		"tools/get_todos.tsx": "export default function App() { return <div/> }\n",
		"prompts/greet.go": "package prompts\n\n" + runtimeImport + `
var Greet = mcpapps.Prompt{Name: "greet"}
`,
	})
}

func initProject(t *testing.T, root string) *Project {
	t.Helper()
	project, err := InitializeProject(context.Background(), ProjectOptions{Root: root}, LoggingConfig{Logger: zap.NewNop()})
	require.NoError(t, err)
	return project
}

func TestSync_WritesGeneratedFiles(t *testing.T) {
	root := todoProject(t)
	project := initProject(t, root)

	result, err := project.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{domain.DefaultOutputFile, domain.DefaultTypesFile, domain.DefaultManifestFile}, result.Written)

	src, err := os.ReadFile(filepath.Join(root, domain.DefaultOutputFile))
	require.NoError(t, err)
	require.Contains(t, string(src), "package main")
	require.Contains(t, string(src), `r.AppTool("get_todos", tools.GetTodos)`)
	require.Contains(t, string(src), `r.Prompt("greet", prompts.Greet)`)

	types, err := os.ReadFile(filepath.Join(root, domain.DefaultTypesFile))
	require.NoError(t, err)
	require.Contains(t, string(types), "export interface TodoInput {\n  filter?: string;\n}")

	manifest, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(domain.DefaultManifestFile)))
	require.NoError(t, err)
	require.NotContains(t, string(manifest), root)

	again, err := project.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.Empty(t, again.Written)
}

func TestSync_CheckReportsStaleFiles(t *testing.T) {
	root := todoProject(t)
	project := initProject(t, root)

	_, err := project.Sync(context.Background(), SyncOptions{Check: true})
	require.True(t, errors.Is(err, ErrStale), err)

	_, err = project.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	result, err := project.Sync(context.Background(), SyncOptions{Check: true})
	require.NoError(t, err)
	require.Empty(t, result.Stale)

	require.NoError(t, os.WriteFile(filepath.Join(root, "prompts", "bye.go"), []byte("package prompts\n\n"+runtimeImport+"\nvar Bye = mcpapps.Prompt{Name: \"bye\"}\n"), 0o644))
	result, err = project.Sync(context.Background(), SyncOptions{Check: true})
	require.True(t, errors.Is(err, ErrStale))
	require.Contains(t, result.Stale, domain.DefaultOutputFile)
	require.Contains(t, result.Diff, "+++ "+domain.DefaultOutputFile)
	require.Contains(t, result.Diff, "prompts.Bye")

	// Check never writes.
	src, err := os.ReadFile(filepath.Join(root, domain.DefaultOutputFile))
	require.NoError(t, err)
	require.NotContains(t, string(src), "bye")
}

func TestSync_FailsWholeOnDuplicates(t *testing.T) {
	root := todoProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "prompts", "again.go"), []byte("package prompts\n\n"+runtimeImport+"\nvar Again = mcpapps.Prompt{Name: \"greet\"}\n"), 0o644))
	project := initProject(t, root)

	_, err := project.Sync(context.Background(), SyncOptions{})
	require.True(t, errors.Is(err, domain.ErrGenerate), err)
	_, statErr := os.Stat(filepath.Join(root, domain.DefaultOutputFile))
	require.True(t, os.IsNotExist(statErr))
}

func TestList_Formats(t *testing.T) {
	root := todoProject(t)
	project := initProject(t, root)
	iframe := func(name string) string { return "/iframe/tools/" + name + "/app.html" }

	var table bytes.Buffer
	require.NoError(t, project.List(context.Background(), &table, FormatTable, iframe))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "KIND"))
	require.Contains(t, lines[1], "get_todos")
	require.Contains(t, lines[1], "react")
	require.Contains(t, lines[2], "greet")

	var out bytes.Buffer
	require.NoError(t, project.List(context.Background(), &out, FormatJSON, iframe))
	var listing Listing
	require.NoError(t, json.Unmarshal(out.Bytes(), &listing))
	require.Equal(t, "/iframe/tools/get_todos/app.html", listing.Tools[0].IframePath)
	require.Equal(t, "tools/get_todos.go", listing.Tools[0].Path)

	out.Reset()
	require.NoError(t, project.List(context.Background(), &out, FormatYAML, iframe))
	var fromYAML Listing
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &fromYAML))
	require.Equal(t, listing.Tools, fromYAML.Tools)
	require.Equal(t, listing.Prompts, fromYAML.Prompts)

	out.Reset()
	require.NoError(t, project.List(context.Background(), &out, FormatTOML, iframe))
	var fromTOML Listing
	require.NoError(t, toml.Unmarshal(out.Bytes(), &fromTOML))
	require.Equal(t, "greet", fromTOML.Prompts[0].Name)

	require.ErrorContains(t, project.List(context.Background(), &out, "xml", iframe), "unknown format")
}

func TestDevOptionsFromEnv(t *testing.T) {
	t.Setenv(EnvDevRoot, "")
	_, ok := DevOptionsFromEnv()
	require.False(t, ok)

	t.Setenv(EnvDevRoot, "1")
	opts, ok := DevOptionsFromEnv()
	require.True(t, ok)
	require.Equal(t, ".", opts.Root)

	t.Setenv(EnvDevRoot, "/work/todo")
	t.Setenv(EnvConfigPath, "/work/todo/alt.yaml")
	opts, ok = DevOptionsFromEnv()
	require.True(t, ok)
	require.Equal(t, ProjectOptions{Root: "/work/todo", ConfigPath: "/work/todo/alt.yaml"}, opts)
}

func TestNewLogging_TeesIntoBroadcaster(t *testing.T) {
	logging := NewLogging(LoggingConfig{Logger: zap.NewNop()})
	require.NotNil(t, logging.Broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := logging.Broadcaster.Subscribe(ctx, zap.InfoLevel, "")
	logging.Logger.Info("hello")

	entry := <-entries
	require.Equal(t, "mcpapps", entry.Logger)
}
