// Package bridge implements the host side of the JSON-RPC protocol spoken
// between a preview page and a tool UI running in a sandboxed iframe.
package bridge

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Host to client.
const (
	MethodInitialize         = "ui/initialize"
	MethodToolInput          = "ui/notifications/tool-input"
	MethodToolResult         = "ui/notifications/tool-result"
	MethodToolCancelled      = "ui/notifications/tool-cancelled"
	MethodHostContextChanged = "ui/notifications/host-context-changed"
	MethodResourceTeardown   = "ui/resource-teardown"
)

// Client to host.
const (
	MethodInitialized        = "ui/notifications/initialized"
	MethodSizeChanged        = "ui/notifications/size-changed"
	MethodOpenLink           = "ui/open-link"
	MethodMessage            = "ui/message"
	MethodLog                = "notifications/message"
	MethodUpdateModelContext = "ui/update-model-context"
	MethodPing               = "ping"
)

// HostContext is the environment snapshot the host shares with a UI. The
// host owns it; the UI treats it as read-only.
type HostContext struct {
	Locale      string    `json:"locale,omitempty"`
	Theme       string    `json:"theme,omitempty"`
	DisplayMode string    `json:"displayMode,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	TimeZone    string    `json:"timeZone,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	ToolInfo    *ToolInfo `json:"toolInfo,omitempty"`
}

type ToolInfo struct {
	Tool *mcp.Tool `json:"tool"`
}

// DefaultHostContext is used until the user customizes the preview.
func DefaultHostContext() HostContext {
	return HostContext{
		Locale:      "en-US",
		Theme:       "light",
		DisplayMode: "inline",
		Platform:    "web",
		TimeZone:    "UTC",
		UserAgent:   "mcpapps-preview",
	}
}

type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type HostCapabilities struct {
	OpenLinks *struct{} `json:"openLinks,omitempty"`
	Logging   *struct{} `json:"logging,omitempty"`
}

type InitializeParams struct {
	ProtocolVersion  string           `json:"protocolVersion"`
	HostInfo         Implementation   `json:"hostInfo"`
	HostCapabilities HostCapabilities `json:"hostCapabilities"`
	HostContext      HostContext      `json:"hostContext"`
}

type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	AppInfo         Implementation  `json:"appInfo"`
	AppCapabilities json.RawMessage `json:"appCapabilities,omitempty"`
}

type ToolInputParams struct {
	Arguments json.RawMessage `json:"arguments"`
}

type ToolCancelledParams struct {
	Reason string `json:"reason,omitempty"`
}

type SizeChangedParams struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height"`
}

type OpenLinkParams struct {
	URL string `json:"url"`
}
