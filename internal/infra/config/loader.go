package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
)

var (
	goIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	originPattern  = regexp.MustCompile(`^(https?://[^\s/;']+|'self'|data:|blob:|\*\.[^\s/;']+)$`)
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("toolsDir", domain.DefaultToolsDir)
	v.SetDefault("resourcesDir", domain.DefaultResourcesDir)
	v.SetDefault("promptsDir", domain.DefaultPromptsDir)
	v.SetDefault("framework", "")
	v.SetDefault("output.file", domain.DefaultOutputFile)
	v.SetDefault("output.package", "")
	v.SetDefault("output.typesFile", domain.DefaultTypesFile)
	v.SetDefault("output.manifest", domain.DefaultManifestFile)
	v.SetDefault("output.uiDir", domain.DefaultUIDir)
	v.SetDefault("dev.listenAddress", domain.DefaultListenAddress)
	v.SetDefault("dev.command", []string{"go", "run", "."})
	v.SetDefault("dev.watch", true)
	v.SetDefault("dev.settingsPath", domain.DefaultSettingsPath)
	v.SetDefault("dev.openBrowser", false)
	v.SetDefault("csp.imgSrc", []string{})
	v.SetDefault("csp.connectSrc", []string{})
	v.SetDefault("build.minify", false)
	v.SetDefault("build.sourcemap", true)
	v.SetDefault("build.target", "es2020")
	v.SetDefault("build.pluginAllowlist", []string{})
	v.SetDefault("server.name", domain.DefaultServerName)
	v.SetDefault("server.version", domain.DefaultServerVersion)
}

type rawConfig struct {
	ToolsDir     string         `mapstructure:"toolsDir"`
	ResourcesDir string         `mapstructure:"resourcesDir"`
	PromptsDir   string         `mapstructure:"promptsDir"`
	Framework    string         `mapstructure:"framework"`
	Output       rawOutput      `mapstructure:"output"`
	Dev          rawDev         `mapstructure:"dev"`
	CSP          rawCSP         `mapstructure:"csp"`
	Build        rawBuildConfig `mapstructure:"build"`
	Server       rawServer      `mapstructure:"server"`
}

type rawOutput struct {
	File      string `mapstructure:"file"`
	Package   string `mapstructure:"package"`
	TypesFile string `mapstructure:"typesFile"`
	Manifest  string `mapstructure:"manifest"`
	UIDir     string `mapstructure:"uiDir"`
}

type rawDev struct {
	ListenAddress string   `mapstructure:"listenAddress"`
	Command       []string `mapstructure:"command"`
	Watch         bool     `mapstructure:"watch"`
	SettingsPath  string   `mapstructure:"settingsPath"`
	OpenBrowser   bool     `mapstructure:"openBrowser"`
}

type rawCSP struct {
	ImgSrc     []string `mapstructure:"imgSrc"`
	ConnectSrc []string `mapstructure:"connectSrc"`
}

type rawBuildConfig struct {
	Minify          bool     `mapstructure:"minify"`
	Sourcemap       bool     `mapstructure:"sourcemap"`
	Target          string   `mapstructure:"target"`
	PluginAllowlist []string `mapstructure:"pluginAllowlist"`
}

type rawServer struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Load reads <root>/mcpapps.yaml when present and returns the normalized
// project configuration. A missing file yields the defaults.
func (l *Loader) Load(ctx context.Context, root string) (domain.ProjectConfig, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return domain.ProjectConfig{}, fmt.Errorf("resolve root: %w", err)
	}
	return l.LoadFile(ctx, absRoot, filepath.Join(absRoot, domain.DefaultConfigFile))
}

func (l *Loader) LoadFile(ctx context.Context, root, path string) (domain.ProjectConfig, error) {
	v := newViper()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Debug("config file not found, using defaults", zap.String("path", path))
	case err != nil:
		return domain.ProjectConfig{}, fmt.Errorf("read config: %w", err)
	default:
		expanded, missing, err := expandEnv(data)
		if err != nil {
			return domain.ProjectConfig{}, err
		}
		if len(missing) > 0 {
			l.logger.Warn("missing environment variables in config", zap.String("path", path), zap.Strings("missing", missing))
		}
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return domain.ProjectConfig{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.ProjectConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.ProjectConfig{}, err
	}

	cfg, errs := normalize(root, raw)
	if len(errs) > 0 {
		return domain.ProjectConfig{}, errors.New(strings.Join(errs, "; "))
	}
	if cfg.Framework == "" {
		cfg.Framework = DetectFramework(root, l.logger)
	}
	return cfg, nil
}

func normalize(root string, raw rawConfig) (domain.ProjectConfig, []string) {
	var errs []string
	cfg := domain.ProjectConfig{
		Root:         root,
		ToolsDir:     cleanDir(raw.ToolsDir),
		ResourcesDir: cleanDir(raw.ResourcesDir),
		PromptsDir:   cleanDir(raw.PromptsDir),
		Output: domain.OutputConfig{
			File:      strings.TrimSpace(raw.Output.File),
			Package:   strings.TrimSpace(raw.Output.Package),
			TypesFile: strings.TrimSpace(raw.Output.TypesFile),
			Manifest:  strings.TrimSpace(raw.Output.Manifest),
			UIDir:     cleanDir(raw.Output.UIDir),
		},
		Dev: domain.DevConfig{
			ListenAddress: strings.TrimSpace(raw.Dev.ListenAddress),
			Command:       trimAll(raw.Dev.Command),
			Watch:         raw.Dev.Watch,
			SettingsPath:  strings.TrimSpace(raw.Dev.SettingsPath),
			OpenBrowser:   raw.Dev.OpenBrowser,
		},
		CSP: domain.CSPConfig{
			ImgSrc:     trimAll(raw.CSP.ImgSrc),
			ConnectSrc: trimAll(raw.CSP.ConnectSrc),
		},
		Build: domain.BuildConfig{
			Minify:          raw.Build.Minify,
			Sourcemap:       raw.Build.Sourcemap,
			Target:          strings.TrimSpace(raw.Build.Target),
			PluginAllowlist: trimAll(raw.Build.PluginAllowlist),
		},
		Server: domain.ServerConfig{
			Name:    strings.TrimSpace(raw.Server.Name),
			Version: strings.TrimSpace(raw.Server.Version),
		},
	}

	fw, err := domain.ParseFramework(raw.Framework)
	if err != nil {
		errs = append(errs, "framework: "+err.Error())
	}
	cfg.Framework = fw

	for key, dir := range map[string]string{"toolsDir": cfg.ToolsDir, "resourcesDir": cfg.ResourcesDir, "promptsDir": cfg.PromptsDir, "output.uiDir": cfg.Output.UIDir} {
		if dir == "" {
			errs = append(errs, key+" is required")
			continue
		}
		if filepath.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, "../") {
			errs = append(errs, fmt.Sprintf("%s %q must stay inside the project", key, dir))
		}
		if dir == "." {
			errs = append(errs, fmt.Sprintf("%s must name a subdirectory, not the project root", key))
		}
	}
	if !strings.HasSuffix(cfg.Output.File, ".go") {
		errs = append(errs, fmt.Sprintf("output.file %q must be a .go file", cfg.Output.File))
	}
	if cfg.Output.Package != "" && !goIdentPattern.MatchString(cfg.Output.Package) {
		errs = append(errs, fmt.Sprintf("output.package %q is not a valid package name", cfg.Output.Package))
	}
	if cfg.Dev.ListenAddress == "" {
		errs = append(errs, "dev.listenAddress is required")
	}
	if len(cfg.Dev.Command) == 0 {
		errs = append(errs, "dev.command is required")
	}
	for i, origin := range cfg.CSP.ImgSrc {
		if origin == "*" || !originPattern.MatchString(origin) {
			errs = append(errs, fmt.Sprintf("csp.imgSrc[%d]: %q is not an explicit origin", i, origin))
		}
	}
	for i, origin := range cfg.CSP.ConnectSrc {
		if origin == "*" || !originPattern.MatchString(origin) {
			errs = append(errs, fmt.Sprintf("csp.connectSrc[%d]: %q is not an explicit origin", i, origin))
		}
	}
	if cfg.Server.Name == "" {
		errs = append(errs, "server.name is required")
	}
	return cfg, errs
}

func cleanDir(dir string) string {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(trimmed))
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
