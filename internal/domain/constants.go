package domain

import "time"

const (
	DefaultToolsDir        = "tools"
	DefaultResourcesDir    = "resources"
	DefaultPromptsDir      = "prompts"
	DefaultFramework       = FrameworkReact
	DefaultConfigFile      = "mcpapps.yaml"
	DefaultOutputFile      = "mcpapps_gen.go"
	DefaultTypesFile       = "mcpapps.d.ts"
	DefaultManifestFile    = ".mcpapps/registry.json"
	DefaultUIDir           = "mcpapps_ui"
	DefaultSettingsPath    = ".mcpapps/settings.db"
	DefaultCacheDir        = ".mcpapps"
	DefaultListenAddress   = "127.0.0.1:5173"
	DefaultServerName      = "mcpapps"
	DefaultServerVersion   = "0.1.0"
	DefaultProtocolVersion = "2025-11-25"
	DefaultDevEnvVar       = "MCPAPPS_DEV"
	DefaultWatchDebounce   = 150 * time.Millisecond
)

// UI resource conventions shared by the generator, the runtime and the dev server.
const (
	UIResourceScheme   = "ui"
	UIResourceDocument = "app.html"
	UIResourceMIMEType = "text/html;profile=mcp-app"
	UIMetaKey          = "ui"
	UIMetaResourceURI  = "resourceUri"
)

const (
	MinFrameHeight          = 120
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultTeardownTimeout  = 2 * time.Second
	DefaultOpenLinkTimeout  = 5 * time.Second
	DefaultLogBufferSize    = 256
	DefaultEventLogLimit    = 500
)
