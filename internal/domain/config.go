package domain

// ProjectConfig is the normalized mcpapps.yaml of one project.
type ProjectConfig struct {
	Root         string
	ToolsDir     string
	ResourcesDir string
	PromptsDir   string
	Framework    Framework
	Output       OutputConfig
	Dev          DevConfig
	CSP          CSPConfig
	Build        BuildConfig
	Server       ServerConfig
}

type OutputConfig struct {
	File      string
	Package   string
	TypesFile string
	Manifest  string
	UIDir     string
}

type DevConfig struct {
	ListenAddress string
	Command       []string
	Watch         bool
	SettingsPath  string
	OpenBrowser   bool
}

// CSPConfig extends the iframe content security policy. Entries are origins.
type CSPConfig struct {
	ImgSrc     []string
	ConnectSrc []string
}

type BuildConfig struct {
	Minify    bool
	Sourcemap bool
	Target    string
	// PluginAllowlist extends the name prefixes of outer plugins kept in sub-builds.
	PluginAllowlist []string
}

type ServerConfig struct {
	Name    string
	Version string
}
