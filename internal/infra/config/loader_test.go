package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, domain.DefaultConfigFile), []byte(content), 0o644))
	return root
}

func TestLoader_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := NewLoader(zap.NewNop()).Load(context.Background(), root)
	require.NoError(t, err)

	want := domain.ProjectConfig{
		Root:         root,
		ToolsDir:     "tools",
		ResourcesDir: "resources",
		PromptsDir:   "prompts",
		Output: domain.OutputConfig{
			File:      domain.DefaultOutputFile,
			TypesFile: domain.DefaultTypesFile,
			Manifest:  domain.DefaultManifestFile,
			UIDir:     domain.DefaultUIDir,
		},
		Dev: domain.DevConfig{
			ListenAddress: domain.DefaultListenAddress,
			Command:       []string{"go", "run", "."},
			Watch:         true,
			SettingsPath:  domain.DefaultSettingsPath,
		},
		CSP: domain.CSPConfig{ImgSrc: []string{}, ConnectSrc: []string{}},
		Build: domain.BuildConfig{
			Sourcemap:       true,
			Target:          "es2020",
			PluginAllowlist: []string{},
		},
		Server: domain.ServerConfig{Name: domain.DefaultServerName, Version: domain.DefaultServerVersion},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_OverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("MCPAPPS_TEST_PORT", "6006")
	root := writeTempConfig(t, `
toolsDir: ./server/tools
framework: preact
output:
  file: register_gen.go
  package: main
dev:
  listenAddress: "127.0.0.1:${MCPAPPS_TEST_PORT}"
  command: ["go", "run", "./cmd/server"]
csp:
  imgSrc: ["https://images.example.com"]
server:
  name: ${MCPAPPS_TEST_NAME:-todo-server}
`)

	cfg, err := NewLoader(nil).Load(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, "server/tools", cfg.ToolsDir)
	require.Equal(t, domain.FrameworkPreact, cfg.Framework)
	require.Equal(t, "register_gen.go", cfg.Output.File)
	require.Equal(t, "main", cfg.Output.Package)
	require.Equal(t, "127.0.0.1:6006", cfg.Dev.ListenAddress)
	require.Equal(t, []string{"go", "run", "./cmd/server"}, cfg.Dev.Command)
	require.Equal(t, []string{"https://images.example.com"}, cfg.CSP.ImgSrc)
	require.Equal(t, "todo-server", cfg.Server.Name)
}

func TestLoader_ValidationErrorsAreAggregated(t *testing.T) {
	root := writeTempConfig(t, `
toolsDir: ../outside
promptsDir: .
framework: angular
output:
  file: register.txt
  package: "not-valid"
csp:
  imgSrc: ["*"]
`)

	_, err := NewLoader(nil).Load(context.Background(), root)
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, `toolsDir "../outside" must stay inside the project`)
	require.Contains(t, msg, `promptsDir must name a subdirectory`)
	require.Contains(t, msg, `unknown framework "angular"`)
	require.Contains(t, msg, `output.file "register.txt" must be a .go file`)
	require.Contains(t, msg, `output.package "not-valid" is not a valid package name`)
	require.Contains(t, msg, `csp.imgSrc[0]: "*" is not an explicit origin`)
}

func TestDetectFramework_FromTSConfigWithComments(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "tsconfig.json"), []byte(`{
  // editor settings
  "compilerOptions": {
    "jsx": "react-jsx",
    "jsxImportSource": "hono/jsx",
  },
}`), 0o644))

	require.Equal(t, domain.FrameworkHono, DetectFramework(root, nil))

	cfg, err := NewLoader(nil).Load(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, domain.FrameworkHono, cfg.Framework)
}

func TestExpandEnv_TracksMissing(t *testing.T) {
	expanded, missing, err := expandEnv([]byte("name: ${MCPAPPS_DEFINITELY_UNSET}\nport: ${MCPAPPS_PORT_UNSET:-8080}\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"MCPAPPS_DEFINITELY_UNSET"}, missing)
	require.Contains(t, expanded, "port: 8080")
}
